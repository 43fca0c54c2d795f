// Package round stores the state of open stateful game rounds (mines,
// blackjack, crash) in the game_rounds table. Every write is guarded by a
// version column so two requests cannot both advance the same round.
package round

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("round not found")
	ErrConflict = errors.New("round changed concurrently")
)

// Round holds state for one open round, keyed by its bet.
type Round struct {
	BetID     string `db:"bet_id" json:"betId"`
	UserID    string `db:"user_id" json:"userId"`
	Game      string `db:"game" json:"game"`
	State     string `db:"state" json:"state"`
	Version   int64  `db:"version" json:"version"`
	UpdatedAt int64  `db:"updated_at" json:"updatedAt"`
}

// Decode unmarshals the round state into v.
func (r *Round) Decode(v interface{}) error {
	return json.Unmarshal([]byte(r.State), v)
}

// Encode marshals v into the round state.
func (r *Round) Encode(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.State = string(b)
	return nil
}

const columns = `bet_id, user_id, game, state, version, updated_at`

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert writes a new round at version 1. ext is the bet's transaction.
func (s *Store) Insert(ctx context.Context, ext sqlx.ExtContext, r *Round) error {
	r.Version = 1
	r.UpdatedAt = time.Now().UnixMilli()
	_, err := ext.ExecContext(ctx, ext.Rebind(`INSERT INTO game_rounds (`+columns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		r.BetID, r.UserID, r.Game, r.State, r.Version, r.UpdatedAt)
	return err
}

// Update writes r.State if the stored version still equals r.Version and
// bumps the version.
func (s *Store) Update(ctx context.Context, ext sqlx.ExtContext, r *Round) error {
	if ext == nil {
		ext = s.db
	}
	now := time.Now().UnixMilli()
	res, err := ext.ExecContext(ctx, ext.Rebind(`UPDATE game_rounds SET state = ?, version = version + 1, updated_at = ?
		WHERE bet_id = ? AND version = ?`), r.State, now, r.BetID, r.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: bet %s version %d", ErrConflict, r.BetID, r.Version)
	}
	r.Version++
	r.UpdatedAt = now
	return nil
}

// Delete removes a finished round if it is still at version.
func (s *Store) Delete(ctx context.Context, ext sqlx.ExtContext, betID string, version int64) error {
	if ext == nil {
		ext = s.db
	}
	res, err := ext.ExecContext(ctx, ext.Rebind(`DELETE FROM game_rounds WHERE bet_id = ? AND version = ?`), betID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: bet %s version %d", ErrConflict, betID, version)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, betID string) (*Round, error) {
	var r Round
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+columns+` FROM game_rounds WHERE bet_id = ?`), betID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bet %s", ErrNotFound, betID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Active returns the user's most recent open round of game.
func (s *Store) Active(ctx context.Context, userID, game string) (*Round, error) {
	var r Round
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+columns+` FROM game_rounds
		WHERE user_id = ? AND game = ? ORDER BY updated_at DESC LIMIT 1`), userID, game)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active %s round", ErrNotFound, game)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns every open round of game.
func (s *Store) List(ctx context.Context, game string) ([]Round, error) {
	list := []Round{}
	err := s.db.SelectContext(ctx, &list, s.db.Rebind(`SELECT `+columns+` FROM game_rounds WHERE game = ? ORDER BY updated_at`), game)
	return list, err
}
