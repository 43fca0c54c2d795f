package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Payment kinds and statuses.
const (
	PaymentDeposit    = "deposit"
	PaymentWithdrawal = "withdrawal"

	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

type Payment struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"userId"`
	Kind        string        `db:"kind" json:"kind"`
	Amount      money.Amount  `db:"amount" json:"amount"`
	Status      string        `db:"status" json:"status"`
	Reference   string        `db:"reference" json:"reference,omitempty"`
	Destination string        `db:"destination" json:"destination,omitempty"`
	Note        string        `db:"note" json:"note,omitempty"`
	DecidedBy   string        `db:"decided_by" json:"decidedBy,omitempty"`
	CreatedAt   int64         `db:"created_at" json:"createdAt"`
	DecidedAt   sql.NullInt64 `db:"decided_at" json:"-"`
}

const paymentColumns = `id, user_id, kind, amount, status, reference, destination, note, decided_by, created_at, decided_at`

type PaymentFilter struct {
	UserID string
	Status string
	Kind   string
	Limit  int
}

func (l *Ledger) insertPayment(ctx context.Context, tx *sqlx.Tx, p *Payment) error {
	_, err := exec(ctx, tx, `INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Kind, int64(p.Amount), p.Status, p.Reference, p.Destination, p.Note, p.DecidedBy, p.CreatedAt, p.DecidedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, p.Reference)
	}
	return err
}

func (l *Ledger) newPayment(userID, kind string, amount money.Amount) *Payment {
	return &Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Status:    PaymentPending,
		CreatedAt: l.nowMillis(),
	}
}

// RequestDeposit records a pending deposit for an admin to approve.
func (l *Ledger) RequestDeposit(ctx context.Context, userID string, amount money.Amount, reference string) (*Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit %s", ErrInvalidAmount, amount)
	}
	p := l.newPayment(userID, PaymentDeposit, amount)
	p.Reference = strings.TrimSpace(reference)
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := l.userWhere(ctx, tx, "id = ?", userID); err != nil {
			return err
		}
		return l.insertPayment(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RecordGatewayDeposit credits a deposit confirmed by the payment gateway.
// Postbacks are deduplicated by reference: a repeat returns the existing
// payment with created=false.
func (l *Ledger) RecordGatewayDeposit(ctx context.Context, userID string, amount money.Amount, reference string) (*Payment, bool, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, false, fmt.Errorf("gateway deposit: reference required")
	}
	if amount <= 0 {
		return nil, false, fmt.Errorf("%w: deposit %s", ErrInvalidAmount, amount)
	}
	var p *Payment
	created := false
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := paymentWhere(ctx, tx, "kind = ? AND reference = ?", PaymentDeposit, reference)
		if err == nil {
			p = existing
			return nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return err
		}
		p = l.newPayment(userID, PaymentDeposit, amount)
		p.Reference = reference
		p.Status = PaymentApproved
		p.DecidedBy = "gateway"
		p.DecidedAt = sql.NullInt64{Int64: p.CreatedAt, Valid: true}
		if err := l.insertPayment(ctx, tx, p); err != nil {
			return err
		}
		if _, err := l.apply(ctx, tx, userID, KindDeposit, amount, p.ID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, ErrDuplicateReference) {
		existing, gerr := paymentWhere(ctx, l.db, "kind = ? AND reference = ?", PaymentDeposit, reference)
		if gerr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	if created {
		l.log.Info("gateway deposit credited", zap.String("payment_id", p.ID), zap.String("user_id", userID), zap.Stringer("amount", amount))
	}
	return p, created, nil
}

// RequestWithdrawal debits the amount at once and records a pending
// withdrawal. Rejecting it refunds the amount.
func (l *Ledger) RequestWithdrawal(ctx context.Context, userID string, amount money.Amount, destination string) (*Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal %s", ErrInvalidAmount, amount)
	}
	p := l.newPayment(userID, PaymentWithdrawal, amount)
	p.Destination = destination
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := l.apply(ctx, tx, userID, KindWithdrawal, -amount, p.ID); err != nil {
			return err
		}
		return l.insertPayment(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ApprovePayment approves a pending payment; approved deposits are credited.
func (l *Ledger) ApprovePayment(ctx context.Context, id, admin string) (*Payment, error) {
	return l.decide(ctx, id, admin, PaymentApproved, "")
}

// RejectPayment rejects a pending payment; rejected withdrawals are refunded.
func (l *Ledger) RejectPayment(ctx context.Context, id, admin, note string) (*Payment, error) {
	return l.decide(ctx, id, admin, PaymentRejected, note)
}

func (l *Ledger) decide(ctx context.Context, id, admin, status, note string) (*Payment, error) {
	var p *Payment
	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := exec(ctx, tx, `UPDATE payments SET status = ?, decided_by = ?, decided_at = ?, note = ?
			WHERE id = ? AND status = 'pending'`, status, admin, l.nowMillis(), note, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		cur, err := paymentWhere(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, id, cur.Status)
		}
		switch {
		case cur.Kind == PaymentDeposit && status == PaymentApproved:
			_, err = l.apply(ctx, tx, cur.UserID, KindDeposit, cur.Amount, cur.ID)
		case cur.Kind == PaymentWithdrawal && status == PaymentRejected:
			_, err = l.apply(ctx, tx, cur.UserID, KindWithdrawalRefund, cur.Amount, cur.ID)
		}
		if err != nil {
			return err
		}
		p = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("payment decided",
		zap.String("payment_id", p.ID), zap.String("user_id", p.UserID), zap.String("kind", p.Kind),
		zap.String("status", p.Status), zap.String("admin", admin))
	return p, nil
}

func (l *Ledger) Payment(ctx context.Context, id string) (*Payment, error) {
	return paymentWhere(ctx, l.db, "id = ?", id)
}

// Payments lists payments matching f, newest first.
func (l *Ledger) Payments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	q := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, f.Limit)
	list := []Payment{}
	err := sel(ctx, l.db, &list, q, args...)
	return list, err
}

func paymentWhere(ctx context.Context, q sqlx.ExtContext, where string, args ...interface{}) (*Payment, error) {
	var p Payment
	err := get(ctx, q, &p, `SELECT `+paymentColumns+` FROM payments WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
