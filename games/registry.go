package games

import (
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
)

// Kind tells whether a game settles in one request or keeps a round open.
type Kind string

const (
	Instant  Kind = "instant"
	Stateful Kind = "stateful"
)

// Game is one catalog entry with its live settings.
type Game struct {
	ID       string            `json:"id"`
	Kind     Kind              `json:"kind"`
	Settings gamemath.Settings `json:"settings"`
}

var kinds = map[string]Kind{
	gamemath.Roulette:  Instant,
	gamemath.Slots:     Instant,
	gamemath.Mines:     Stateful,
	gamemath.Blackjack: Stateful,
	gamemath.Crash:     Stateful,
}

// Registry is the game catalog backed by the settings store.
type Registry struct {
	settings *gamemath.SettingsStore
}

func NewRegistry(settings *gamemath.SettingsStore) *Registry {
	return &Registry{settings: settings}
}

func (r *Registry) HasGame(gameID string) bool {
	_, ok := kinds[gameID]
	return ok
}

// Get returns the game with its current settings.
func (r *Registry) Get(gameID string) (Game, error) {
	kind, ok := kinds[gameID]
	if !ok {
		return Game{}, fmt.Errorf("%w: %q", gamemath.ErrUnknownGame, gameID)
	}
	st, ok := r.settings.Get(gameID)
	if !ok {
		return Game{}, fmt.Errorf("%w: %q", gamemath.ErrUnknownGame, gameID)
	}
	return Game{ID: gameID, Kind: kind, Settings: st}, nil
}

// ListGames returns every game, sorted by id.
func (r *Registry) ListGames() []Game {
	list := r.settings.List()
	out := make([]Game, 0, len(list))
	for _, st := range list {
		kind, ok := kinds[st.Game]
		if !ok {
			continue
		}
		out = append(out, Game{ID: st.Game, Kind: kind, Settings: st})
	}
	return out
}
