package gamemath

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store keeps operator-registered prize tables by model_id in
// prize_tables.json under the data dir. A table registered as "slots"
// replaces the built-in slots paytable until it is removed.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]*GameMath
	dataDir string
}

type tablesFile struct {
	Tables []*GameMath `json:"tables"`
}

// NewStore loads prize_tables.json when present. A file that does not parse
// or holds an invalid table is an error rather than an empty store.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &Store{tables: make(map[string]*GameMath), dataDir: dataDir}
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var f tablesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path(), err)
	}
	for _, m := range f.Tables {
		if err := checkTable(m); err != nil {
			return nil, fmt.Errorf("%s: %w", s.path(), err)
		}
		s.tables[m.ModelID] = withStats(m)
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, "prize_tables.json")
}

func checkTable(m *GameMath) error {
	if m == nil || m.ModelID == "" {
		return fmt.Errorf("%w: model_id required", ErrInvalidTable)
	}
	seen := make(map[string]bool, len(m.PrizeTable))
	for _, t := range m.PrizeTable {
		if t.Weight < 0 || t.Multiplier < 0 {
			return fmt.Errorf("%w: tier %q has a negative weight or multiplier", ErrInvalidTable, t.Tier)
		}
		if seen[t.Tier] {
			return fmt.Errorf("%w: tier %q listed twice", ErrInvalidTable, t.Tier)
		}
		seen[t.Tier] = true
	}
	if totalWeight(m.PrizeTable) == 0 {
		return fmt.Errorf("%w: prize_table has no weight", ErrInvalidTable)
	}
	return nil
}

// withStats returns a private copy of m with stats computed from its table.
func withStats(m *GameMath) *GameMath {
	c := *m
	c.PrizeTable = append([]PrizeTier(nil), m.PrizeTable...)
	c.Stats = &GameStats{
		ComputedRTP: ComputeRTP(c.PrizeTable),
		HitRate:     HitRate(c.PrizeTable),
	}
	return &c
}

func clone(m *GameMath) *GameMath {
	c := *m
	c.PrizeTable = append([]PrizeTier(nil), m.PrizeTable...)
	if m.Stats != nil {
		st := *m.Stats
		c.Stats = &st
	}
	return &c
}

// saveLocked writes every table through a temp file. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(tablesFile{Tables: s.listLocked()}, "", "  ")
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

func (s *Store) listLocked() []*GameMath {
	out := make([]*GameMath, 0, len(s.tables))
	for _, m := range s.tables {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Register validates m and stores a copy under its model_id, replacing any
// previous table. The stored copy, with computed stats, is returned.
func (s *Store) Register(m *GameMath) (*GameMath, error) {
	if err := checkTable(m); err != nil {
		return nil, err
	}
	stored := withStats(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.tables[stored.ModelID]
	s.tables[stored.ModelID] = stored
	if err := s.saveLocked(); err != nil {
		if had {
			s.tables[stored.ModelID] = prev
		} else {
			delete(s.tables, stored.ModelID)
		}
		return nil, err
	}
	return clone(stored), nil
}

// Get returns a copy of the table registered under modelID, or nil.
func (s *Store) Get(modelID string) *GameMath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tables[modelID]
	if !ok {
		return nil
	}
	return clone(m)
}

// List returns copies of all tables sorted by model_id.
func (s *Store) List() []*GameMath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.listLocked()
	for i, m := range list {
		list[i] = clone(m)
	}
	return list
}

// Remove deletes a table. It reports whether one was registered.
func (s *Store) Remove(modelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tables[modelID]
	if !ok {
		return false, nil
	}
	delete(s.tables, modelID)
	if err := s.saveLocked(); err != nil {
		s.tables[modelID] = prev
		return false, err
	}
	return true, nil
}
