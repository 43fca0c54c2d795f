package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
)

// Bet statuses.
const (
	BetOpen    = "open"
	BetSettled = "settled"
	BetVoid    = "void"
)

type Bet struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"userId"`
	Game           string         `db:"game" json:"game"`
	Stake          money.Amount   `db:"stake" json:"stake"`
	Payout         money.Amount   `db:"payout" json:"payout"`
	Status         string         `db:"status" json:"status"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotencyKey"`
	ServerSeedHash string         `db:"server_seed_hash" json:"serverSeedHash"`
	ClientSeed     string         `db:"client_seed" json:"clientSeed"`
	Nonce          int64          `db:"nonce" json:"nonce"`
	Outcome        types.JSONText `db:"outcome" json:"outcome"`
	CreatedAt      int64          `db:"created_at" json:"createdAt"`
	SettledAt      sql.NullInt64  `db:"settled_at" json:"-"`
}

const betColumns = `id, user_id, game, stake, payout, status, idempotency_key, server_seed_hash, client_seed, nonce, outcome, created_at, settled_at`

// Net is payout minus stake for settled bets and minus stake for open ones.
func (b *Bet) Net() money.Amount {
	switch b.Status {
	case BetSettled:
		return b.Payout - b.Stake
	case BetOpen:
		return -b.Stake
	}
	return 0
}

// BetRequest describes a stake to take from a user. The seed fields record
// the commitment the outcome was (or will be) drawn from.
type BetRequest struct {
	UserID         string
	Game           string
	Stake          money.Amount
	IdempotencyKey string
	Seed           SeedUse
	// InTx runs in the same transaction after the bet row is inserted.
	InTx TxFunc
}

func (r BetRequest) validate() error {
	if r.UserID == "" || r.Game == "" {
		return fmt.Errorf("bet request: user and game required")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("bet request: idempotency key required")
	}
	if r.Stake <= 0 {
		return fmt.Errorf("%w: stake %s", ErrInvalidAmount, r.Stake)
	}
	return nil
}

// PlaceBet debits the stake and records an open bet. Replaying an
// idempotency key returns the original bet with replayed=true and changes
// nothing.
func (l *Ledger) PlaceBet(ctx context.Context, req BetRequest) (*Bet, bool, error) {
	return l.place(ctx, req, nil)
}

// PlaceAndSettle takes the stake and pays out an instant game in one
// transaction.
func (l *Ledger) PlaceAndSettle(ctx context.Context, req BetRequest, payout money.Amount, outcome []byte) (*Bet, bool, error) {
	if payout < 0 {
		return nil, false, fmt.Errorf("%w: payout %s", ErrInvalidAmount, payout)
	}
	return l.place(ctx, req, &settleArgs{payout: payout, outcome: outcome})
}

type settleArgs struct {
	payout  money.Amount
	outcome []byte
}

func (l *Ledger) place(ctx context.Context, req BetRequest, settle *settleArgs) (*Bet, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	var (
		bet      *Bet
		replayed bool
	)
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := betByKey(ctx, tx, req.UserID, req.IdempotencyKey)
		if err == nil {
			bet, replayed = existing, true
			return nil
		}
		if !errors.Is(err, ErrBetNotFound) {
			return err
		}

		now := l.nowMillis()
		b := &Bet{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			Game:           req.Game,
			Stake:          req.Stake,
			Status:         BetOpen,
			IdempotencyKey: req.IdempotencyKey,
			ServerSeedHash: req.Seed.ServerSeedHash,
			ClientSeed:     req.Seed.ClientSeed,
			Nonce:          int64(req.Seed.Nonce),
			CreatedAt:      now,
		}
		if _, err := l.apply(ctx, tx, b.UserID, KindBet, -b.Stake, b.ID); err != nil {
			return err
		}
		if settle != nil {
			b.Status = BetSettled
			b.Payout = settle.payout
			b.Outcome = types.JSONText(settle.outcome)
			b.SettledAt = sql.NullInt64{Int64: now, Valid: true}
		}
		_, err = exec(ctx, tx, `INSERT INTO bets (`+betColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.UserID, b.Game, int64(b.Stake), int64(b.Payout), b.Status, b.IdempotencyKey,
			b.ServerSeedHash, b.ClientSeed, b.Nonce, string(b.Outcome), b.CreatedAt, b.SettledAt)
		if err != nil {
			return err
		}
		if settle != nil && settle.payout > 0 {
			if _, err := l.apply(ctx, tx, b.UserID, KindWin, settle.payout, b.ID); err != nil {
				return err
			}
		}
		if req.InTx != nil {
			if err := req.InTx(ctx, tx, b); err != nil {
				return err
			}
		}
		bet = b
		return nil
	})
	if isUniqueViolation(err) {
		// A concurrent request with the same key won the insert.
		b, gerr := betByKey(ctx, l.db, req.UserID, req.IdempotencyKey)
		if gerr != nil {
			return nil, false, err
		}
		return b, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !replayed {
		l.log.Debug("bet placed",
			zap.String("bet_id", bet.ID), zap.String("user_id", bet.UserID),
			zap.String("game", bet.Game), zap.Stringer("stake", bet.Stake), zap.String("status", bet.Status))
	}
	return bet, replayed, nil
}

// SettleBet pays out an open bet. The status flip is conditional on the bet
// still being open, so a second settlement fails with ErrAlreadySettled and
// credits nothing.
func (l *Ledger) SettleBet(ctx context.Context, betID string, payout money.Amount, outcome []byte, inTx TxFunc) (*Bet, error) {
	if payout < 0 {
		return nil, fmt.Errorf("%w: payout %s", ErrInvalidAmount, payout)
	}
	return l.close(ctx, betID, BetSettled, payout, outcome, inTx)
}

// VoidBet cancels an open bet and refunds its stake.
func (l *Ledger) VoidBet(ctx context.Context, betID string, inTx TxFunc) (*Bet, error) {
	return l.close(ctx, betID, BetVoid, 0, nil, inTx)
}

func (l *Ledger) close(ctx context.Context, betID, status string, payout money.Amount, outcome []byte, inTx TxFunc) (*Bet, error) {
	var bet *Bet
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		now := l.nowMillis()
		res, err := exec(ctx, tx, `UPDATE bets SET status = ?, payout = ?, outcome = ?, settled_at = ?
			WHERE id = ? AND status = 'open'`, status, int64(payout), string(outcome), now, betID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := betByID(ctx, tx, betID); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrAlreadySettled, betID)
		}
		b, err := betByID(ctx, tx, betID)
		if err != nil {
			return err
		}
		switch {
		case status == BetVoid:
			if _, err := l.apply(ctx, tx, b.UserID, KindRefund, b.Stake, b.ID); err != nil {
				return err
			}
		case payout > 0:
			if _, err := l.apply(ctx, tx, b.UserID, KindWin, payout, b.ID); err != nil {
				return err
			}
		}
		if inTx != nil {
			if err := inTx(ctx, tx, b); err != nil {
				return err
			}
		}
		bet = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Debug("bet closed",
		zap.String("bet_id", bet.ID), zap.String("user_id", bet.UserID), zap.String("game", bet.Game),
		zap.String("status", bet.Status), zap.Stringer("payout", bet.Payout))
	return bet, nil
}

// RaiseStake debits extra stake onto an open bet (a blackjack double).
func (l *Ledger) RaiseStake(ctx context.Context, betID string, extra money.Amount, inTx TxFunc) (*Bet, error) {
	if extra <= 0 {
		return nil, fmt.Errorf("%w: extra stake %s", ErrInvalidAmount, extra)
	}
	var bet *Bet
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := exec(ctx, tx, `UPDATE bets SET stake = stake + ? WHERE id = ? AND status = 'open'`, int64(extra), betID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			if _, err := betByID(ctx, tx, betID); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrAlreadySettled, betID)
		}
		b, err := betByID(ctx, tx, betID)
		if err != nil {
			return err
		}
		if _, err := l.apply(ctx, tx, b.UserID, KindBet, -extra, b.ID); err != nil {
			return err
		}
		if inTx != nil {
			if err := inTx(ctx, tx, b); err != nil {
				return err
			}
		}
		bet = b
		return nil
	})
	return bet, err
}

func (l *Ledger) Bet(ctx context.Context, betID string) (*Bet, error) {
	return betByID(ctx, l.db, betID)
}

// BetByKey finds a bet by its idempotency key.
func (l *Ledger) BetByKey(ctx context.Context, userID, key string) (*Bet, error) {
	return betByKey(ctx, l.db, userID, key)
}

// Bets returns the newest bets of a user first.
func (l *Ledger) Bets(ctx context.Context, userID string, limit int) ([]Bet, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	list := []Bet{}
	err := sel(ctx, l.db, &list, `SELECT `+betColumns+` FROM bets WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	return list, err
}

// OpenBets lists open bets of a game, oldest first.
func (l *Ledger) OpenBets(ctx context.Context, game string) ([]Bet, error) {
	list := []Bet{}
	err := sel(ctx, l.db, &list, `SELECT `+betColumns+` FROM bets WHERE game = ? AND status = 'open' ORDER BY created_at`, game)
	return list, err
}

func betByID(ctx context.Context, q sqlx.ExtContext, id string) (*Bet, error) {
	var b Bet
	err := get(ctx, q, &b, `SELECT `+betColumns+` FROM bets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBetNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func betByKey(ctx context.Context, q sqlx.ExtContext, userID, key string) (*Bet, error) {
	var b Bet
	err := get(ctx, q, &b, `SELECT `+betColumns+` FROM bets WHERE user_id = ? AND idempotency_key = ?`, userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
