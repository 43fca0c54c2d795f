// Package ledger owns every balance mutation. Each change to users.balance
// happens in one SQL transaction together with the bet, payment and
// append-only transaction rows that explain it.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already taken")
	ErrBetNotFound        = errors.New("bet not found")
	ErrAlreadySettled     = errors.New("bet already settled")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyDecided     = errors.New("payment already decided")
	ErrDuplicateReference = errors.New("duplicate payment reference")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSeedNotFound       = errors.New("seed not found")
)

// TxFunc runs inside a ledger transaction after the bet row is written.
// Returning an error rolls back the whole mutation.
type TxFunc func(ctx context.Context, tx *sqlx.Tx, bet *Bet) error

type Ledger struct {
	db  *sqlx.DB
	log *zap.Logger
	now func() time.Time
}

func New(db *sqlx.DB, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, log: log, now: time.Now}
}

func (l *Ledger) DB() *sqlx.DB { return l.db }

func (l *Ledger) nowMillis() int64 { return l.now().UnixMilli() }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	role            TEXT NOT NULL,
	balance         BIGINT NOT NULL CHECK (balance >= 0),
	initial_balance BIGINT NOT NULL,
	tx_seq          BIGINT NOT NULL DEFAULT 0,
	last_hash       TEXT NOT NULL DEFAULT '',
	created_at      BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS bets (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id),
	game             TEXT NOT NULL,
	stake            BIGINT NOT NULL,
	payout           BIGINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	idempotency_key  TEXT NOT NULL,
	server_seed_hash TEXT NOT NULL DEFAULT '',
	client_seed      TEXT NOT NULL DEFAULT '',
	nonce            BIGINT NOT NULL DEFAULT 0,
	outcome          TEXT NOT NULL DEFAULT '',
	created_at       BIGINT NOT NULL,
	settled_at       BIGINT,
	UNIQUE (user_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS bets_user_idx ON bets (user_id, created_at);
CREATE INDEX IF NOT EXISTS bets_game_status_idx ON bets (game, status);
CREATE TABLE IF NOT EXISTS transactions (
	user_id       TEXT NOT NULL REFERENCES users(id),
	seq           BIGINT NOT NULL,
	kind          TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	ref           TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	hash          TEXT NOT NULL,
	created_at    BIGINT NOT NULL,
	PRIMARY KEY (user_id, seq)
);
CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	kind        TEXT NOT NULL,
	amount      BIGINT NOT NULL CHECK (amount > 0),
	status      TEXT NOT NULL,
	reference   TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT '',
	decided_by  TEXT NOT NULL DEFAULT '',
	created_at  BIGINT NOT NULL,
	decided_at  BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS payments_reference_idx ON payments (kind, reference) WHERE reference <> '';
CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status, created_at);
CREATE TABLE IF NOT EXISTS seeds (
	user_id          TEXT PRIMARY KEY REFERENCES users(id),
	server_seed      TEXT NOT NULL,
	server_seed_hash TEXT NOT NULL,
	client_seed      TEXT NOT NULL,
	nonce            BIGINT NOT NULL DEFAULT 0,
	created_at       BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS revealed_seeds (
	server_seed_hash TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id),
	server_seed      TEXT NOT NULL,
	client_seed      TEXT NOT NULL,
	final_nonce      BIGINT NOT NULL,
	created_at       BIGINT NOT NULL,
	revealed_at      BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS game_rounds (
	bet_id     TEXT PRIMARY KEY REFERENCES bets(id),
	user_id    TEXT NOT NULL REFERENCES users(id),
	game       TEXT NOT NULL,
	state      TEXT NOT NULL,
	version    BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS game_rounds_user_idx ON game_rounds (user_id, game);
`

// Migrate creates the schema. It is safe to run repeatedly.
func (l *Ledger) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (l *Ledger) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func get(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

func sel(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, e sqlx.ExtContext, query string, args ...interface{}) (sql.Result, error) {
	return e.ExecContext(ctx, e.Rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
