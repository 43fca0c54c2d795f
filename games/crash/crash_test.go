package crash

import (
	"testing"
	"time"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed float64

func (f fixed) Float64() float64 { return float64(f) }
func (f fixed) Intn(int) int     { return 0 }

func TestMultiplier(t *testing.T) {
	tests := []struct {
		step int
		want string
	}{
		{0, "1.00"},
		{1, "1.01"},
		{50, "1.50"},
		{100, "2.00"},
		{-1, "1.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Multiplier(tt.step).StringFixed(2))
	}
	assert.Equal(t, 150, StepFor(decimal.RequireFromString("2.5")))
	assert.Equal(t, 1, StepFor(decimal.RequireFromString("1.001")))
	assert.Equal(t, MaxStep, StepFor(Multiplier(MaxStep)))
	assert.Equal(t, MaxStep+1, StepFor(decimal.RequireFromString("10000.01")))
	assert.Equal(t, MaxStep+1, StepFor(decimal.RequireFromString("1e30")))
}

func TestCrashStep(t *testing.T) {
	assert.Equal(t, 0, CrashStep(fixed(0), 0.97))
	assert.Equal(t, 94, CrashStep(fixed(0.5), 0.97))
	assert.Equal(t, 288, CrashStep(fixed(0.75), 0.97))
	assert.Equal(t, MaxStep, CrashStep(fixed(0.9999999999), 0.97))
}

func TestCrashStep_Distribution(t *testing.T) {
	const n = 20000
	reached := 0
	for i := 0; i < n; i++ {
		if CrashStep(fair.NewStream("crash", "c", uint64(i)), 0.97) >= 100 {
			reached++
		}
	}
	assert.InDelta(t, 0.97/2, float64(reached)/n, 0.02)
}

func TestRound_CashoutBeforeCrash(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r, err := NewRound(fixed(0.5), 1000, 0.97, 0, start)
	require.NoError(t, err)
	require.Equal(t, 94, r.CrashStep)

	now := start.Add(50 * StepInterval)
	assert.Equal(t, 50, r.StepAt(now))
	assert.ErrorIs(t, r.Cashout(60, now), ErrStepNotReached)

	require.NoError(t, r.Cashout(-1, now))
	assert.Equal(t, StateCashedOut, r.State)
	assert.Equal(t, money.Amount(1500), r.Payout())
	assert.ErrorIs(t, r.Cashout(-1, now), ErrNotRunning)
}

func TestRound_CashoutAfterCrashLoses(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r, err := NewRound(fixed(0.5), 1000, 0.97, 0, start)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Cashout(-1, start.Add(95*StepInterval)), ErrNotRunning)
	assert.Equal(t, StateCrashed, r.State)
	assert.Equal(t, money.Amount(0), r.Payout())
}

func TestRound_AutoCashout(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r, err := NewRound(fixed(0.75), 200, 0.97, 100, start)
	require.NoError(t, err)

	assert.False(t, r.Resolve(start.Add(99*StepInterval)))
	assert.True(t, r.Resolve(start.Add(150*StepInterval)))
	assert.Equal(t, StateCashedOut, r.State)
	assert.Equal(t, 100, r.CashoutStep)
	assert.Equal(t, money.Amount(400), r.Payout())
}

func TestRound_AutoCashoutAboveCrash(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r, err := NewRound(fixed(0.5), 200, 0.97, 500, start)
	require.NoError(t, err)

	assert.True(t, r.Resolve(start.Add(600*StepInterval)))
	assert.Equal(t, StateCrashed, r.State)
}

func TestRound_Expire(t *testing.T) {
	r, err := NewRound(fixed(0.9), 100, 0.97, 0, time.Now())
	require.NoError(t, err)
	r.Expire()
	assert.Equal(t, StateCrashed, r.State)

	_, err = NewRound(fixed(0.9), 100, 0.97, -1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAutoStep)
}

func TestRound_ViewHidesCrashPoint(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r, err := NewRound(fixed(0.5), 100, 0.97, 0, start)
	require.NoError(t, err)

	v := r.View(start.Add(10 * StepInterval))
	assert.Empty(t, v.CrashPoint)
	assert.Equal(t, "1.10", v.Multiplier)

	r.Resolve(start.Add(200 * StepInterval))
	v = r.View(start.Add(200 * StepInterval))
	assert.Equal(t, "1.94", v.CrashPoint)
}
