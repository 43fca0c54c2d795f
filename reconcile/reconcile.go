// Package reconcile verifies every user's balance against the bets and
// payments that should have produced it, and against the transaction chain.
package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Issue codes.
const (
	IssueBalance      = "balance_mismatch"
	IssueLedgerSum    = "ledger_sum_mismatch"
	IssueBalanceAfter = "balance_after_mismatch"
	IssueSequence     = "sequence_gap"
	IssueHashChain    = "hash_chain_broken"
)

// DefaultTolerance is one minor unit.
const DefaultTolerance = money.Amount(1)

// Source is the part of the ledger reconciliation reads.
type Source interface {
	Users(ctx context.Context) ([]ledger.User, error)
	Snapshot(ctx context.Context, userID string) (*ledger.Snapshot, error)
}

type Result struct {
	UserID          string       `json:"userId"`
	Username        string       `json:"username"`
	Balance         money.Amount `json:"balance"`
	Expected        money.Amount `json:"expected"`
	Diff            money.Amount `json:"diff"`
	NetGame         money.Amount `json:"netGame"`
	NetTransactions money.Amount `json:"netTransactions"`
	Issues          []string     `json:"issues,omitempty"`
}

func (r Result) OK() bool { return len(r.Issues) == 0 }

type Report struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Tolerance  money.Amount `json:"tolerance"`
	Checked    int          `json:"checked"`
	Mismatches []Result     `json:"mismatches"`
}

func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

// Check reconciles one snapshot. The balance must equal
// initial_balance + net_game + net_transactions within tol, and the
// transaction chain must sum to the balance with intact hashes.
func Check(s *ledger.Snapshot, tol money.Amount) Result {
	u := s.User
	res := Result{
		UserID:          u.ID,
		Username:        u.Username,
		Balance:         u.Balance,
		NetGame:         s.NetGame(),
		NetTransactions: s.NetTransactions(),
	}
	res.Expected = u.InitialBalance + res.NetGame + res.NetTransactions
	res.Diff = u.Balance - res.Expected
	if res.Diff.Abs() > tol {
		res.Issues = append(res.Issues, IssueBalance)
	}

	sum := u.InitialBalance
	prev := ""
	seqOK, hashOK, afterOK := true, true, true
	for i, t := range s.Transactions {
		sum += t.Amount
		if t.Seq != int64(i+1) {
			seqOK = false
		}
		if t.BalanceAfter != sum {
			afterOK = false
		}
		if t.PrevHash != prev || t.Hash != ledger.ChainHash(t.PrevHash, t.UserID, t.Seq, t.Kind, t.Amount, t.BalanceAfter, t.Ref) {
			hashOK = false
		}
		prev = t.Hash
	}
	if sum != u.Balance {
		res.Issues = append(res.Issues, IssueLedgerSum)
	}
	if !afterOK {
		res.Issues = append(res.Issues, IssueBalanceAfter)
	}
	if !seqOK || int64(len(s.Transactions)) != u.TxSeq {
		res.Issues = append(res.Issues, IssueSequence)
	}
	if !hashOK || prev != u.LastHash {
		res.Issues = append(res.Issues, IssueHashChain)
	}
	return res
}

type Reconciler struct {
	src       Source
	tolerance money.Amount
	workers   int
	log       *zap.Logger
}

func New(src Source, tolerance money.Amount, workers int, log *zap.Logger) *Reconciler {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{src: src, tolerance: tolerance, workers: workers, log: log}
}

// Run checks every user with a bounded pool of workers.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	rep := &Report{StartedAt: time.Now(), Tolerance: r.tolerance, Mismatches: []Result{}}
	users, err := r.src.Users(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, u := range users {
		id := u.ID
		g.Go(func() error {
			snap, err := r.src.Snapshot(gctx, id)
			if err != nil {
				return err
			}
			res := Check(snap, r.tolerance)
			mu.Lock()
			defer mu.Unlock()
			rep.Checked++
			if !res.OK() {
				rep.Mismatches = append(rep.Mismatches, res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(rep.Mismatches, func(i, j int) bool { return rep.Mismatches[i].Username < rep.Mismatches[j].Username })
	rep.FinishedAt = time.Now()

	for _, m := range rep.Mismatches {
		r.log.Warn("reconciliation mismatch",
			zap.String("user_id", m.UserID), zap.String("username", m.Username),
			zap.Stringer("balance", m.Balance), zap.Stringer("expected", m.Expected),
			zap.Strings("issues", m.Issues))
	}
	r.log.Info("reconciliation finished",
		zap.Int("checked", rep.Checked), zap.Int("mismatches", len(rep.Mismatches)),
		zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

// Schedule runs the reconciler every interval until ctx is cancelled.
func (r *Reconciler) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconciliation failed", zap.Error(err))
			}
		}
	}
}
