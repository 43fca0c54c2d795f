package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/jmoiron/sqlx"
)

// Seed is a user's active seed pair. The server seed stays secret until the
// pair is rotated.
type Seed struct {
	UserID         string `db:"user_id" json:"userId"`
	ServerSeed     string `db:"server_seed" json:"-"`
	ServerSeedHash string `db:"server_seed_hash" json:"serverSeedHash"`
	ClientSeed     string `db:"client_seed" json:"clientSeed"`
	Nonce          int64  `db:"nonce" json:"nonce"`
	CreatedAt      int64  `db:"created_at" json:"createdAt"`
}

// SeedUse is the seed pair and nonce one bet draws from.
type SeedUse struct {
	ServerSeed     string
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
}

func (u SeedUse) Stream() *fair.Stream {
	return fair.NewStream(u.ServerSeed, u.ClientSeed, u.Nonce)
}

type RevealedSeed struct {
	ServerSeedHash string `db:"server_seed_hash" json:"serverSeedHash"`
	UserID         string `db:"user_id" json:"userId"`
	ServerSeed     string `db:"server_seed" json:"serverSeed"`
	ClientSeed     string `db:"client_seed" json:"clientSeed"`
	FinalNonce     int64  `db:"final_nonce" json:"finalNonce"`
	CreatedAt      int64  `db:"created_at" json:"createdAt"`
	RevealedAt     int64  `db:"revealed_at" json:"revealedAt"`
}

const seedColumns = `user_id, server_seed, server_seed_hash, client_seed, nonce, created_at`

func (l *Ledger) ActiveSeed(ctx context.Context, userID string) (*Seed, error) {
	return seedFor(ctx, l.db, userID)
}

func seedFor(ctx context.Context, q sqlx.ExtContext, userID string) (*Seed, error) {
	var s Seed
	err := get(ctx, q, &s, `SELECT `+seedColumns+` FROM seeds WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrSeedNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// NextSeed consumes one nonce of the active pair.
func (l *Ledger) NextSeed(ctx context.Context, userID string) (SeedUse, error) {
	var u SeedUse
	var nonce int64
	err := l.db.QueryRowxContext(ctx, l.db.Rebind(`UPDATE seeds SET nonce = nonce + 1 WHERE user_id = ?
		RETURNING server_seed, server_seed_hash, client_seed, nonce`), userID).
		Scan(&u.ServerSeed, &u.ServerSeedHash, &u.ClientSeed, &nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return SeedUse{}, fmt.Errorf("%w: user %s", ErrSeedNotFound, userID)
	}
	if err != nil {
		return SeedUse{}, err
	}
	u.Nonce = uint64(nonce)
	return u, nil
}

// RotateSeed reveals the active server seed and starts a new pair with
// clientSeed (random when empty).
func (l *Ledger) RotateSeed(ctx context.Context, userID, clientSeed string) (*RevealedSeed, *Seed, error) {
	var revealed *RevealedSeed
	var next *Seed
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := seedFor(ctx, tx, userID)
		if err != nil {
			return err
		}
		revealed = &RevealedSeed{
			ServerSeedHash: cur.ServerSeedHash,
			UserID:         userID,
			ServerSeed:     cur.ServerSeed,
			ClientSeed:     cur.ClientSeed,
			FinalNonce:     cur.Nonce,
			CreatedAt:      cur.CreatedAt,
			RevealedAt:     l.nowMillis(),
		}
		if _, err := exec(ctx, tx, `INSERT INTO revealed_seeds (server_seed_hash, user_id, server_seed, client_seed, final_nonce, created_at, revealed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, revealed.ServerSeedHash, revealed.UserID, revealed.ServerSeed,
			revealed.ClientSeed, revealed.FinalNonce, revealed.CreatedAt, revealed.RevealedAt); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `DELETE FROM seeds WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if err := l.insertSeed(ctx, tx, userID, clientSeed); err != nil {
			return err
		}
		next, err = seedFor(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return revealed, next, nil
}

// RevealedSeed looks up a revealed server seed by its commitment.
func (l *Ledger) RevealedSeed(ctx context.Context, serverSeedHash string) (*RevealedSeed, error) {
	var r RevealedSeed
	err := get(ctx, l.db, &r, `SELECT server_seed_hash, user_id, server_seed, client_seed, final_nonce, created_at, revealed_at
		FROM revealed_seeds WHERE server_seed_hash = ?`, serverSeedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, serverSeedHash)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
