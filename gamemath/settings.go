package gamemath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ashenafi-pixel/casino-settlement/money"
	"gopkg.in/yaml.v3"
)

// Game ids.
const (
	Roulette  = "roulette"
	Slots     = "slots"
	Mines     = "mines"
	Blackjack = "blackjack"
	Crash     = "crash"
)

var (
	ErrUnknownGame     = errors.New("unknown game")
	ErrGameDisabled    = errors.New("game disabled")
	ErrStakeOutOfRange = errors.New("stake out of range")
	ErrInvalidSettings = errors.New("invalid game settings")
)

// Settings is the admin-tunable configuration of one game.
// Blackjack ignores RTP; its edge comes from the rules.
type Settings struct {
	Game    string       `yaml:"game" json:"game"`
	RTP     float64      `yaml:"rtp" json:"rtp"`
	Enabled bool         `yaml:"enabled" json:"enabled"`
	MinBet  money.Amount `yaml:"min_bet" json:"minBet"`
	MaxBet  money.Amount `yaml:"max_bet" json:"maxBet"`
}

func DefaultSettings() map[string]Settings {
	min, max := money.MustParse("0.10"), money.MustParse("1000")
	return map[string]Settings{
		Roulette:  {Game: Roulette, RTP: 36.0 / 37.0, Enabled: true, MinBet: min, MaxBet: max},
		Slots:     {Game: Slots, RTP: 0.96, Enabled: true, MinBet: min, MaxBet: max},
		Mines:     {Game: Mines, RTP: 0.97, Enabled: true, MinBet: min, MaxBet: max},
		Blackjack: {Game: Blackjack, RTP: 0.995, Enabled: true, MinBet: min, MaxBet: max},
		Crash:     {Game: Crash, RTP: 0.97, Enabled: true, MinBet: min, MaxBet: max},
	}
}

// KnownGame reports whether game is one of the five supported ids.
func KnownGame(game string) bool {
	_, ok := DefaultSettings()[game]
	return ok
}

func (st Settings) Validate() error {
	if !KnownGame(st.Game) {
		return fmt.Errorf("%w: %q", ErrUnknownGame, st.Game)
	}
	if st.RTP <= 0 || st.RTP > 1 {
		return fmt.Errorf("%w: rtp must be in (0, 1], got %v", ErrInvalidSettings, st.RTP)
	}
	if st.MinBet <= 0 || st.MaxBet < st.MinBet {
		return fmt.Errorf("%w: bet limits %s..%s", ErrInvalidSettings, st.MinBet, st.MaxBet)
	}
	return nil
}

// CheckStake rejects stakes for disabled games or outside the bet limits.
func (st Settings) CheckStake(stake money.Amount) error {
	if !st.Enabled {
		return fmt.Errorf("%w: %s", ErrGameDisabled, st.Game)
	}
	if stake < st.MinBet || stake > st.MaxBet {
		return fmt.Errorf("%w: %s not in %s..%s", ErrStakeOutOfRange, stake, st.MinBet, st.MaxBet)
	}
	return nil
}

// SettingsStore keeps per-game settings in rtp.yaml under the data dir.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
	dataDir  string
}

// NewSettingsStore loads defaults and overlays rtp.yaml when present.
func NewSettingsStore(dataDir string) (*SettingsStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &SettingsStore{settings: DefaultSettings(), dataDir: dataDir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsStore) path() string {
	return filepath.Join(s.dataDir, "rtp.yaml")
}

type settingsFile struct {
	Games []Settings `yaml:"games"`
}

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", s.path(), err)
	}
	for _, st := range f.Games {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.path(), err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range f.Games {
		s.settings[st.Game] = st
	}
	return nil
}

// saveLocked writes the store to disk via a temp file. Caller must hold s.mu.
func (s *SettingsStore) saveLocked() error {
	f := settingsFile{Games: s.listLocked()}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

func (s *SettingsStore) listLocked() []Settings {
	out := make([]Settings, 0, len(s.settings))
	for _, st := range s.settings {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out
}

func (s *SettingsStore) Get(game string) (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[game]
	return st, ok
}

// List returns all settings sorted by game id.
func (s *SettingsStore) List() []Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Set validates and persists st, replacing the game's current settings.
func (s *SettingsStore) Set(st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.settings[st.Game]
	s.settings[st.Game] = st
	if err := s.saveLocked(); err != nil {
		if had {
			s.settings[st.Game] = prev
		}
		return err
	}
	return nil
}
