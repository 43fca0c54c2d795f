package roulette

import (
	"testing"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetWins(t *testing.T) {
	tests := []struct {
		bet    Bet
		pocket int
		want   bool
	}{
		{Bet{Kind: Straight, Value: 0}, 0, true},
		{Bet{Kind: Straight, Value: 17}, 18, false},
		{Bet{Kind: Red}, 1, true},
		{Bet{Kind: Red}, 2, false},
		{Bet{Kind: Black}, 2, true},
		{Bet{Kind: Black}, 0, false},
		{Bet{Kind: Even}, 0, false},
		{Bet{Kind: Even}, 36, true},
		{Bet{Kind: Odd}, 35, true},
		{Bet{Kind: Low}, 18, true},
		{Bet{Kind: High}, 18, false},
		{Bet{Kind: Dozen, Value: 2}, 13, true},
		{Bet{Kind: Dozen, Value: 2}, 25, false},
		{Bet{Kind: Column, Value: 1}, 34, true},
		{Bet{Kind: Column, Value: 3}, 36, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.bet.Wins(tt.pocket), "%s/%d on %d", tt.bet.Kind, tt.bet.Value, tt.pocket)
	}
}

func TestBetPayout(t *testing.T) {
	assert.Equal(t, money.Amount(3600), Bet{Kind: Straight, Value: 7, Stake: 100}.Payout(7))
	assert.Equal(t, money.Amount(300), Bet{Kind: Dozen, Value: 1, Stake: 100}.Payout(7))
	assert.Equal(t, money.Amount(200), Bet{Kind: Red, Stake: 100}.Payout(7))
	assert.Equal(t, money.Amount(0), Bet{Kind: Red, Stake: 100}.Payout(0))
}

func TestColor(t *testing.T) {
	assert.Equal(t, "green", Color(0))
	assert.Equal(t, "red", Color(32))
	assert.Equal(t, "black", Color(15))
}

func TestSpin_RejectsInvalid(t *testing.T) {
	src := fair.Secure()
	_, err := Spin(src, nil, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = Spin(src, []Bet{{Kind: Straight, Value: 37, Stake: 1}}, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = Spin(src, []Bet{{Kind: Dozen, Value: 0, Stake: 1}}, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = Spin(src, []Bet{{Kind: "split", Stake: 1}}, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = Spin(src, []Bet{{Kind: Red, Stake: 0}}, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)
}

func TestTotalStake(t *testing.T) {
	limit := money.MustParse("1000")
	total, err := TotalStake([]Bet{{Kind: Red, Stake: 500}, {Kind: Straight, Value: 0, Stake: 250}}, limit)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(750), total)

	_, err = TotalStake([]Bet{{Kind: Red, Stake: 100}, {Kind: Black, Stake: limit + 1}}, limit)
	assert.ErrorIs(t, err, gamemath.ErrStakeOutOfRange)

	// Chips that wrap around int64 when added must never look like a small stake.
	huge := []Bet{
		{Kind: Dozen, Value: 1, Stake: money.MustParse("61489146912698505.39")},
		{Kind: Straight, Value: 0, Stake: money.MustParse("92233720368547758.07")},
		{Kind: Straight, Value: 0, Stake: money.MustParse("30744573455849253.70")},
	}
	_, err = TotalStake(huge, money.Amount(1<<62))
	assert.ErrorIs(t, err, ErrInvalidBet)
	_, err = Spin(fair.Secure(), huge, NaturalRTP)
	assert.ErrorIs(t, err, ErrInvalidBet)

	many := make([]Bet, MaxBets+1)
	for i := range many {
		many[i] = Bet{Kind: Red, Stake: 1}
	}
	_, err = TotalStake(many, limit)
	assert.ErrorIs(t, err, ErrInvalidBet)
}

func TestSpin_LargestChipsFit(t *testing.T) {
	bets := make([]Bet, MaxBets)
	for i := range bets {
		bets[i] = Bet{Kind: Straight, Value: 7, Stake: MaxChip}
	}
	out, err := Spin(fair.Secure(), bets, NaturalRTP)
	require.NoError(t, err)
	assert.Equal(t, MaxChip*MaxBets, out.Stake)
	assert.True(t, out.Payout >= 0)
}

func TestSpin_SettlesEveryBet(t *testing.T) {
	bets := []Bet{
		{Kind: Red, Stake: 100},
		{Kind: Straight, Value: 3, Stake: 50},
		{Kind: Column, Value: 2, Stake: 25},
	}
	out, err := Spin(fair.NewStream("server", "client", 1), bets, NaturalRTP)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(175), out.Stake)
	assert.Len(t, out.Bets, 3)
	assert.Equal(t, Color(out.Pocket), out.Color)

	var sum money.Amount
	for _, r := range out.Bets {
		assert.Equal(t, r.Bet.Payout(out.Pocket), r.Payout)
		sum += r.Payout
	}
	assert.Equal(t, sum, out.Payout)
}

func TestSpin_Replayable(t *testing.T) {
	bets := []Bet{{Kind: Odd, Stake: 10}}
	a, err := Spin(fair.NewStream("s", "c", 42), bets, 0.9)
	require.NoError(t, err)
	b, err := Spin(fair.NewStream("s", "c", 42), bets, 0.9)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func meanReturn(t *testing.T, bets []Bet, rtp float64, n int) float64 {
	t.Helper()
	var staked, paid money.Amount
	for i := 0; i < n; i++ {
		out, err := Spin(fair.NewStream("rtp-seed", "client", uint64(i)), bets, rtp)
		require.NoError(t, err)
		staked += out.Stake
		paid += out.Payout
	}
	return float64(paid) / float64(staked)
}

func TestSpin_NaturalRTP(t *testing.T) {
	got := meanReturn(t, []Bet{{Kind: Red, Stake: 100}}, NaturalRTP, 20000)
	assert.InDelta(t, NaturalRTP, got, 0.03)
}

func TestSpin_BiasedRTP(t *testing.T) {
	got := meanReturn(t, []Bet{{Kind: Red, Stake: 100}}, 0.5, 20000)
	assert.InDelta(t, 0.5, got, 0.03)
}

func TestSpin_FullCoverageCannotBeBiased(t *testing.T) {
	bets := make([]Bet, 0, Pockets)
	for p := 0; p < Pockets; p++ {
		bets = append(bets, Bet{Kind: Straight, Value: p, Stake: 10})
	}
	out, err := Spin(fair.Secure(), bets, 0.5)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(360), out.Payout)
}
