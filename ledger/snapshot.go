package ledger

import (
	"context"
	"database/sql"

	"github.com/Ashenafi-pixel/casino-settlement/money"
)

// Snapshot is everything needed to reconcile one user, read in a single
// transaction.
type Snapshot struct {
	User         User
	SettledNet   money.Amount // sum(payout - stake) of settled bets
	OpenStake    money.Amount
	Deposits     money.Amount // approved
	Withdrawals  money.Amount // pending or approved
	Transactions []Transaction
}

// NetGame is the game result: settled net minus stakes still open.
func (s *Snapshot) NetGame() money.Amount { return s.SettledNet - s.OpenStake }

// NetTransactions is approved deposits minus withdrawals that were not rejected.
func (s *Snapshot) NetTransactions() money.Amount { return s.Deposits - s.Withdrawals }

func (l *Ledger) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	var opts *sql.TxOptions
	if l.db.DriverName() != "sqlite" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := l.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	u, err := l.userWhere(ctx, tx, "id = ?", userID)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{User: *u}
	sums := []struct {
		dest  *money.Amount
		query string
		args  []interface{}
	}{
		{&s.SettledNet, `SELECT CAST(COALESCE(SUM(payout - stake), 0) AS BIGINT) FROM bets WHERE user_id = ? AND status = ?`, []interface{}{userID, BetSettled}},
		{&s.OpenStake, `SELECT CAST(COALESCE(SUM(stake), 0) AS BIGINT) FROM bets WHERE user_id = ? AND status = ?`, []interface{}{userID, BetOpen}},
		{&s.Deposits, `SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM payments WHERE user_id = ? AND kind = ? AND status = ?`, []interface{}{userID, PaymentDeposit, PaymentApproved}},
		{&s.Withdrawals, `SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM payments WHERE user_id = ? AND kind = ? AND status <> ?`, []interface{}{userID, PaymentWithdrawal, PaymentRejected}},
	}
	for _, q := range sums {
		if err := get(ctx, tx, q.dest, q.query, q.args...); err != nil {
			return nil, err
		}
	}
	if s.Transactions, err = chain(ctx, tx, userID); err != nil {
		return nil, err
	}
	return s, nil
}

