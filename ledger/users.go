package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Roles.
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

type User struct {
	ID             string       `db:"id" json:"id"`
	Username       string       `db:"username" json:"username"`
	Role           string       `db:"role" json:"role"`
	Balance        money.Amount `db:"balance" json:"balance"`
	InitialBalance money.Amount `db:"initial_balance" json:"initialBalance"`
	TxSeq          int64        `db:"tx_seq" json:"-"`
	LastHash       string       `db:"last_hash" json:"-"`
	CreatedAt      int64        `db:"created_at" json:"createdAt"`
}

const userColumns = `id, username, role, balance, initial_balance, tx_seq, last_hash, created_at`

// CreateUser inserts a user with its opening balance and first seed pair.
func (l *Ledger) CreateUser(ctx context.Context, username string, initial money.Amount, role string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	if initial < 0 {
		return nil, fmt.Errorf("%w: initial balance %s", ErrInvalidAmount, initial)
	}
	if role == "" {
		role = RolePlayer
	}
	if role != RolePlayer && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	u := &User{
		ID:             uuid.NewString(),
		Username:       username,
		Role:           role,
		Balance:        initial,
		InitialBalance: initial,
		CreatedAt:      l.nowMillis(),
	}
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := exec(ctx, tx, `INSERT INTO users (id, username, role, balance, initial_balance, tx_seq, last_hash, created_at)
			VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
			u.ID, u.Username, u.Role, int64(u.Balance), int64(u.InitialBalance), u.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		if err != nil {
			return err
		}
		return l.insertSeed(ctx, tx, u.ID, "")
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("user created", zap.String("user_id", u.ID), zap.String("username", username), zap.String("role", role))
	return u, nil
}

func (l *Ledger) User(ctx context.Context, id string) (*User, error) {
	return l.userWhere(ctx, l.db, "id = ?", id)
}

func (l *Ledger) UserByName(ctx context.Context, username string) (*User, error) {
	return l.userWhere(ctx, l.db, "username = ?", username)
}

func (l *Ledger) userWhere(ctx context.Context, q sqlx.ExtContext, where string, arg interface{}) (*User, error) {
	var u User
	err := get(ctx, q, &u, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *Ledger) Balance(ctx context.Context, id string) (money.Amount, error) {
	u, err := l.User(ctx, id)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// Users lists every user ordered by creation.
func (l *Ledger) Users(ctx context.Context) ([]User, error) {
	var list []User
	if err := sel(ctx, l.db, &list, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	return list, nil
}

func (l *Ledger) insertSeed(ctx context.Context, tx *sqlx.Tx, userID, clientSeed string) error {
	server, err := fair.NewServerSeed()
	if err != nil {
		return err
	}
	if clientSeed == "" {
		if clientSeed, err = fair.NewClientSeed(); err != nil {
			return err
		}
	}
	_, err = exec(ctx, tx, `INSERT INTO seeds (user_id, server_seed, server_seed_hash, client_seed, nonce, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`, userID, server, fair.Hash(server), clientSeed, l.nowMillis())
	return err
}
