package settlement

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casino "github.com/Ashenafi-pixel/casino-settlement"
	"github.com/Ashenafi-pixel/casino-settlement/feed"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games"
	"github.com/Ashenafi-pixel/casino-settlement/games/blackjack"
	"github.com/Ashenafi-pixel/casino-settlement/games/crash"
	"github.com/Ashenafi-pixel/casino-settlement/games/mines"
	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/reconcile"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

type recorder struct {
	mu     sync.Mutex
	events []feed.Event
}

func (r *recorder) Publish(e feed.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	ledger   *ledger.Ledger
	rounds   *round.Store
	settings *gamemath.SettingsStore
	feed     *recorder
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := casino.Open(casino.DriverSQLite, filepath.Join(dir, "casino.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l := ledger.New(db, nil)
	require.NoError(t, l.Migrate(context.Background()))
	settings, err := gamemath.NewSettingsStore(dir)
	require.NoError(t, err)
	tables, err := gamemath.NewStore(dir)
	require.NoError(t, err)

	f := &fixture{
		ledger:   l,
		rounds:   round.NewStore(db),
		settings: settings,
		feed:     &recorder{},
		clock:    &clock{t: time.Unix(1_700_000_000, 0)},
	}
	f.svc = New(Options{
		Ledger: l,
		Rounds: f.rounds,
		Games:  games.NewRegistry(settings),
		Tables: tables,
		Feed:   f.feed,
		Now:    f.clock.Now,
	})
	return f
}

func (f *fixture) user(t *testing.T, balance string) *ledger.User {
	t.Helper()
	u, err := f.ledger.CreateUser(context.Background(), "player-"+balance+"-"+t.Name(), money.MustParse(balance), ledger.RolePlayer)
	require.NoError(t, err)
	return u
}

// reconciled asserts the user's balance matches their bets and payments.
func (f *fixture) reconciled(t *testing.T, userID string) {
	t.Helper()
	snap, err := f.ledger.Snapshot(context.Background(), userID)
	require.NoError(t, err)
	res := reconcile.Check(snap, 0)
	assert.True(t, res.OK(), "issues: %v", res.Issues)
}

func TestRoulette_SettlesAndReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	bets := []roulette.Bet{{Kind: roulette.Red, Stake: 500}, {Kind: roulette.Straight, Value: 17, Stake: 100}}
	p, err := f.svc.Roulette(ctx, u.ID, bets, "r1")
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, p.Bet.Status)
	assert.Equal(t, money.Amount(600), p.Bet.Stake)
	assert.EqualValues(t, 1, p.Bet.Nonce)
	out := p.Round.(roulette.Outcome)
	assert.Equal(t, out.Payout, p.Bet.Payout)
	assert.Equal(t, money.Amount(10000)-600+out.Payout, p.Balance)

	again, err := f.svc.Roulette(ctx, u.ID, bets, "r1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, p.Bet.ID, again.Bet.ID)
	assert.Equal(t, p.Balance, again.Balance)

	seed, err := f.ledger.ActiveSeed(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seed.Nonce, "a replay must not consume a nonce")
	assert.Equal(t, 1, f.feed.count())
	f.reconciled(t, u.ID)
}

func TestRoulette_RejectsBeforeDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "5")

	_, err := f.svc.Roulette(ctx, u.ID, []roulette.Bet{{Kind: roulette.Red, Stake: 1}}, "low")
	assert.ErrorIs(t, err, gamemath.ErrStakeOutOfRange)

	st, _ := f.settings.Get(gamemath.Roulette)
	st.Enabled = false
	require.NoError(t, f.settings.Set(st))
	_, err = f.svc.Roulette(ctx, u.ID, []roulette.Bet{{Kind: roulette.Red, Stake: 100}}, "off")
	assert.ErrorIs(t, err, gamemath.ErrGameDisabled)

	bal, err := f.ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("5"), bal)
}

func TestSlots_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "1")

	_, err := f.svc.Slots(ctx, u.ID, money.MustParse("2"), "s1")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	p, err := f.svc.Slots(ctx, u.ID, money.MustParse("1"), "s2")
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, p.Bet.Status)
	f.reconciled(t, u.ID)
}

func TestSlots_ManySpinsStayConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "1000")
	for i := 0; i < 50; i++ {
		_, err := f.svc.Slots(ctx, u.ID, 100, "spin-"+string(rune('a'+i%26))+string(rune('a'+i/26)))
		require.NoError(t, err)
	}
	f.reconciled(t, u.ID)
	assert.Equal(t, 50, f.feed.count())
}

// safeTiles peeks at the stored board.
func safeTiles(t *testing.T, f *fixture, betID string) (safe []int, mine int) {
	t.Helper()
	r, err := f.rounds.Get(context.Background(), betID)
	require.NoError(t, err)
	var g mines.Game
	require.NoError(t, r.Decode(&g))
	isMine := map[int]bool{}
	for _, m := range g.Mines {
		isMine[m] = true
	}
	for i := 0; i < mines.Tiles; i++ {
		if !isMine[i] {
			safe = append(safe, i)
		}
	}
	return safe, g.Mines[0]
}

func TestMines_RevealAndCashout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.MinesStart(ctx, u.ID, 1000, 3, "m1")
	require.NoError(t, err)
	assert.Equal(t, ledger.BetOpen, p.Bet.Status)
	assert.Empty(t, p.Round.(mines.View).Mines)

	_, err = f.svc.MinesStart(ctx, u.ID, 1000, 3, "m2")
	assert.ErrorIs(t, err, ErrRoundInProgress)

	active, err := f.svc.MinesActive(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Bet.ID, active.Bet.ID)

	safe, _ := safeTiles(t, f, p.Bet.ID)
	_, err = f.svc.MinesCashout(ctx, u.ID, p.Bet.ID)
	assert.ErrorIs(t, err, mines.ErrNothingToCash)

	p, err = f.svc.MinesReveal(ctx, u.ID, p.Bet.ID, safe[0])
	require.NoError(t, err)
	_, err = f.svc.MinesReveal(ctx, u.ID, p.Bet.ID, safe[0])
	assert.ErrorIs(t, err, mines.ErrTileRevealed)
	p, err = f.svc.MinesReveal(ctx, u.ID, p.Bet.ID, safe[1])
	require.NoError(t, err)

	done, err := f.svc.MinesCashout(ctx, u.ID, p.Bet.ID)
	require.NoError(t, err)
	view := done.Round.(mines.View)
	assert.Equal(t, mines.StateCashedOut, view.State)
	want := money.Amount(1000).MulRatio(mines.Multiplier(3, 2, 0.97))
	assert.Equal(t, want, done.Bet.Payout)
	assert.Equal(t, ledger.BetSettled, done.Bet.Status)
	assert.Len(t, view.Mines, 3)

	_, err = f.svc.MinesActive(ctx, u.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	_, err = f.svc.MinesCashout(ctx, u.ID, p.Bet.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	f.reconciled(t, u.ID)
}

func TestMines_Bust(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.MinesStart(ctx, u.ID, 1000, 5, "m1")
	require.NoError(t, err)
	_, mine := safeTiles(t, f, p.Bet.ID)

	done, err := f.svc.MinesReveal(ctx, u.ID, p.Bet.ID, mine)
	require.NoError(t, err)
	assert.Equal(t, mines.StateBusted, done.Round.(mines.View).State)
	assert.Equal(t, money.Amount(0), done.Bet.Payout)
	assert.Equal(t, money.MustParse("90"), done.Balance)
	f.reconciled(t, u.ID)
}

func TestMines_OtherUserCannotAct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "100")
	bob := f.user(t, "50")

	p, err := f.svc.MinesStart(ctx, alice.ID, 1000, 3, "m1")
	require.NoError(t, err)
	_, err = f.svc.MinesCashout(ctx, bob.ID, p.Bet.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestMines_InvalidCountKeepsNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")
	_, err := f.svc.MinesStart(ctx, u.ID, 1000, 25, "m1")
	assert.ErrorIs(t, err, mines.ErrInvalidMines)
	seed, err := f.ledger.ActiveSeed(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, seed.Nonce)
}

func TestBlackjack_PlaysToSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "1000")

	for i := 0; i < 10; i++ {
		key := "bj-" + string(rune('a'+i))
		p, err := f.svc.BlackjackStart(ctx, u.ID, 1000, key)
		require.NoError(t, err)
		if p.Bet.Status == ledger.BetOpen {
			view := p.Round.(blackjack.View)
			action := blackjack.Stand
			if view.CanDouble && i%2 == 0 {
				action = blackjack.Double
			}
			p, err = f.svc.BlackjackAct(ctx, u.ID, p.Bet.ID, action)
			require.NoError(t, err)
			if action == blackjack.Double {
				assert.Equal(t, money.Amount(2000), p.Bet.Stake)
			}
		}
		assert.Equal(t, ledger.BetSettled, p.Bet.Status)
		view := p.Round.(blackjack.View)
		assert.Equal(t, view.Payout, p.Bet.Payout)
		assert.NotEmpty(t, view.Result)

		_, err = f.svc.BlackjackAct(ctx, u.ID, p.Bet.ID, blackjack.Hit)
		assert.ErrorIs(t, err, ErrRoundNotFound)
	}
	f.reconciled(t, u.ID)
}

func TestBlackjack_InvalidAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "1000")

	// Deal until a hand stays open.
	for i := 0; i < 20; i++ {
		p, err := f.svc.BlackjackStart(ctx, u.ID, 1000, "deal-"+string(rune('a'+i)))
		require.NoError(t, err)
		if p.Bet.Status != ledger.BetOpen {
			continue
		}
		_, err = f.svc.BlackjackAct(ctx, u.ID, p.Bet.ID, "split")
		assert.ErrorIs(t, err, blackjack.ErrInvalidAction)
		_, err = f.svc.BlackjackStart(ctx, u.ID, 1000, "other")
		assert.ErrorIs(t, err, ErrRoundInProgress)
		return
	}
	t.Fatal("no open hand in 20 deals")
}

func TestCrash_CashoutAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.CrashStart(ctx, u.ID, 1000, decimal.Zero, "c1")
	require.NoError(t, err)
	if p.Bet.Status == ledger.BetSettled {
		// crashed at 1.00
		assert.Equal(t, money.Amount(0), p.Bet.Payout)
		return
	}

	st, err := f.svc.CrashStatus(ctx, u.ID, p.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, crash.StateRunning, st.Round.(crash.View).State)
	assert.Empty(t, st.Round.(crash.View).CrashPoint)

	_, err = f.svc.CrashCashout(ctx, u.ID, p.Bet.ID, decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, crash.ErrStepNotReached)

	done, err := f.svc.CrashCashout(ctx, u.ID, p.Bet.ID, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, done.Bet.Status)
	assert.Equal(t, crash.StateCashedOut, done.Round.(crash.View).State)
	assert.Equal(t, money.Amount(1000), done.Bet.Payout)

	_, err = f.svc.CrashCashout(ctx, u.ID, p.Bet.ID, decimal.Zero)
	assert.ErrorIs(t, err, crash.ErrNotRunning)

	after, err := f.svc.CrashStatus(ctx, u.ID, p.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, after.Bet.Status)
	f.reconciled(t, u.ID)
}

func TestCrash_StatusSettlesCrashedRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.CrashStart(ctx, u.ID, 1000, decimal.Zero, "c1")
	require.NoError(t, err)
	f.clock.Advance(time.Duration(crash.MaxStep+1) * crash.StepInterval)

	st, err := f.svc.CrashStatus(ctx, u.ID, p.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetSettled, st.Bet.Status)
	assert.Equal(t, money.Amount(0), st.Bet.Payout)
	assert.Equal(t, money.MustParse("90"), st.Balance)
}

func TestCrash_InvalidAutoCashout(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "100")
	_, err := f.svc.CrashStart(context.Background(), u.ID, 1000, decimal.RequireFromString("0.5"), "c1")
	assert.ErrorIs(t, err, crash.ErrInvalidAutoStep)
}

func TestSweepCrash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	open := 0
	for i := 0; i < 3; i++ {
		u := f.user(t, string(rune('1'+i))+"00")
		p, err := f.svc.CrashStart(ctx, u.ID, 1000, decimal.Zero, "c")
		require.NoError(t, err)
		if p.Bet.Status == ledger.BetOpen {
			open++
		}
	}
	n, err := f.svc.SweepCrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing has ended yet at step 0")

	f.clock.Advance(DefaultCrashMaxRound + time.Second)
	n, err = f.svc.SweepCrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, open, n)

	left, err := f.rounds.List(ctx, gamemath.Crash)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestVoid_RefundsAndDropsRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.MinesStart(ctx, u.ID, 1000, 3, "m1")
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, p.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BetVoid, voided.Status)

	bal, err := f.ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100"), bal)
	_, err = f.rounds.Get(ctx, p.Bet.ID)
	assert.ErrorIs(t, err, round.ErrNotFound)

	_, err = f.svc.Void(ctx, p.Bet.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	_, err = f.svc.Void(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrBetNotFound)
	f.reconciled(t, u.ID)
}

func TestRotateSeed_WaitsForOpenRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	p, err := f.svc.MinesStart(ctx, u.ID, 100, 24, "m1")
	require.NoError(t, err)
	require.Equal(t, ledger.BetOpen, p.Bet.Status)

	// The board is drawn from the active seed, so it must stay hidden.
	_, _, err = f.svc.RotateSeed(ctx, u.ID, "")
	assert.ErrorIs(t, err, ErrRoundInProgress)
	seed, err := f.ledger.ActiveSeed(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Bet.ServerSeedHash, seed.ServerSeedHash)

	_, err = f.svc.Void(ctx, p.Bet.ID)
	require.NoError(t, err)
	revealed, next, err := f.svc.RotateSeed(ctx, u.ID, "fresh")
	require.NoError(t, err)
	assert.Equal(t, p.Bet.ServerSeedHash, revealed.ServerSeedHash)
	assert.Equal(t, "fresh", next.ClientSeed)
}

func TestRoulette_ChipLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")
	st, _ := f.settings.Get(gamemath.Roulette)

	_, err := f.svc.Roulette(ctx, u.ID, []roulette.Bet{
		{Kind: roulette.Black, Stake: 100},
		{Kind: roulette.Red, Stake: st.MaxBet + 1},
	}, "big")
	assert.ErrorIs(t, err, gamemath.ErrStakeOutOfRange)

	// Chips whose sum wraps around int64 must not pass as a small stake.

	_, err = f.svc.Roulette(ctx, u.ID, []roulette.Bet{
		{Kind: roulette.Dozen, Value: 1, Stake: money.MustParse("61489146912698505.39")},
		{Kind: roulette.Straight, Value: 0, Stake: money.MustParse("92233720368547758.07")},
		{Kind: roulette.Straight, Value: 0, Stake: money.MustParse("30744573455849253.70")},
	}, "wrap")
	assert.ErrorIs(t, err, roulette.ErrInvalidBet)

	bal, err := f.ledger.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100"), bal)
	seed, err := f.ledger.ActiveSeed(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, seed.Nonce)
	bets, err := f.ledger.Bets(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestBlackjack_DoubleWithoutFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 20; i++ {
		u, err := f.ledger.CreateUser(ctx, "short-"+string(rune('a'+i)), money.MustParse("10"), ledger.RolePlayer)
		require.NoError(t, err)
		p, err := f.svc.BlackjackStart(ctx, u.ID, 1000, "deal")
		require.NoError(t, err)
		if p.Bet.Status != ledger.BetOpen {
			continue
		}
		require.True(t, p.Round.(blackjack.View).CanDouble)
		before, err := f.rounds.Get(ctx, p.Bet.ID)
		require.NoError(t, err)

		_, err = f.svc.BlackjackAct(ctx, u.ID, p.Bet.ID, blackjack.Double)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		bal, err := f.ledger.Balance(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, money.Amount(0), bal)
		bet, err := f.ledger.Bet(ctx, p.Bet.ID)
		require.NoError(t, err)
		assert.Equal(t, money.Amount(1000), bet.Stake)
		after, err := f.rounds.Get(ctx, p.Bet.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, before.State, after.State)

		done, err := f.svc.BlackjackAct(ctx, u.ID, p.Bet.ID, blackjack.Stand)
		require.NoError(t, err)
		assert.Equal(t, ledger.BetSettled, done.Bet.Status)
		assert.Equal(t, money.Amount(1000), done.Bet.Stake)
		f.reconciled(t, u.ID)
		return
	}
	t.Fatal("no open hand in 20 deals")
}

func TestCrash_CashoutBeyondCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	for i := 0; i < 20; i++ {
		p, err := f.svc.CrashStart(ctx, u.ID, 100, decimal.Zero, "c-"+string(rune('a'+i)))
		require.NoError(t, err)
		if p.Bet.Status != ledger.BetOpen {
			continue
		}
		for _, at := range []string{"10000.01", "92233720368547758.09", "1e30"} {
			_, err = f.svc.CrashCashout(ctx, u.ID, p.Bet.ID, decimal.RequireFromString(at))
			assert.ErrorIs(t, err, crash.ErrStepNotReached, at)
		}
		st, err := f.svc.CrashStatus(ctx, u.ID, p.Bet.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.BetOpen, st.Bet.Status)
		assert.Equal(t, crash.StateRunning, st.Round.(crash.View).State)
		return
	}
	t.Fatal("no running crash round in 20 starts")
}
