package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/jmoiron/sqlx"
	"lukechampine.com/blake3"
)

// Transaction kinds.
const (
	KindBet              = "bet"
	KindWin              = "win"
	KindRefund           = "refund"
	KindDeposit          = "deposit"
	KindWithdrawal       = "withdrawal"
	KindWithdrawalRefund = "withdrawal_refund"
)

// Transaction is one append-only ledger row. Rows of a user form a hash chain.
type Transaction struct {
	UserID       string       `db:"user_id" json:"userId"`
	Seq          int64        `db:"seq" json:"seq"`
	Kind         string       `db:"kind" json:"kind"`
	Amount       money.Amount `db:"amount" json:"amount"`
	BalanceAfter money.Amount `db:"balance_after" json:"balanceAfter"`
	Ref          string       `db:"ref" json:"ref"`
	PrevHash     string       `db:"prev_hash" json:"prevHash"`
	Hash         string       `db:"hash" json:"hash"`
	CreatedAt    int64        `db:"created_at" json:"createdAt"`
}

const txColumns = `user_id, seq, kind, amount, balance_after, ref, prev_hash, hash, created_at`

// ChainHash is blake3(prev | user | seq | kind | amount | balance_after | ref), hex encoded.
func ChainHash(prev, userID string, seq int64, kind string, amount, balanceAfter money.Amount, ref string) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%d|%d|%s",
		prev, userID, seq, kind, int64(amount), int64(balanceAfter), ref)))
	return hex.EncodeToString(sum[:])
}

// apply moves the balance by amount (negative debits) and appends the
// transaction row. A debit is one conditional UPDATE: zero rows means the
// user cannot cover it.
func (l *Ledger) apply(ctx context.Context, tx *sqlx.Tx, userID, kind string, amount money.Amount, ref string) (*Transaction, error) {
	need := money.Amount(0)
	if amount < 0 {
		need = -amount
	}
	var (
		balance money.Amount
		seq     int64
		prev    string
	)
	err := tx.QueryRowxContext(ctx, tx.Rebind(`UPDATE users SET balance = balance + ?, tx_seq = tx_seq + 1
		WHERE id = ? AND balance >= ? RETURNING balance, tx_seq, last_hash`),
		int64(amount), userID, int64(need)).Scan(&balance, &seq, &prev)
	if errors.Is(err, sql.ErrNoRows) {
		if _, uerr := l.userWhere(ctx, tx, "id = ?", userID); uerr != nil {
			return nil, uerr
		}
		return nil, fmt.Errorf("%w: need %s", ErrInsufficientFunds, need)
	}
	if err != nil {
		return nil, err
	}
	t := &Transaction{
		UserID:       userID,
		Seq:          seq,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balance,
		Ref:          ref,
		PrevHash:     prev,
		CreatedAt:    l.nowMillis(),
	}
	t.Hash = ChainHash(prev, userID, seq, kind, amount, balance, ref)
	if _, err := exec(ctx, tx, `INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Seq, t.Kind, int64(t.Amount), int64(t.BalanceAfter), t.Ref, t.PrevHash, t.Hash, t.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := exec(ctx, tx, `UPDATE users SET last_hash = ? WHERE id = ?`, t.Hash, userID); err != nil {
		return nil, err
	}
	return t, nil
}

// Transactions returns the newest transactions of a user first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	list := []Transaction{}
	err := sel(ctx, l.db, &list, `SELECT `+txColumns+` FROM transactions WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit)
	return list, err
}

func chain(ctx context.Context, q sqlx.ExtContext, userID string) ([]Transaction, error) {
	list := []Transaction{}
	err := sel(ctx, q, &list, `SELECT `+txColumns+` FROM transactions WHERE user_id = ? ORDER BY seq`, userID)
	return list, err
}
