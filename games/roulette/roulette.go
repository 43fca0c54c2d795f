// Package roulette settles European single-zero roulette spins.
package roulette

import (
	"errors"
	"fmt"
	"math"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

// Pockets on a single-zero wheel.
const Pockets = 37

// NaturalRTP is the return of every standard bet on an unbiased wheel.
const NaturalRTP = 36.0 / 37.0

// MaxBets caps the chips in one spin.
const MaxBets = 50

// MaxChip is the largest stake one chip may carry. With it, MaxBets chips
// paid at straight-up odds still fit in an Amount.
const MaxChip = money.Amount(math.MaxInt64 / 36 / MaxBets)

type Kind string

const (
	Straight Kind = "straight"
	Red      Kind = "red"
	Black    Kind = "black"
	Even     Kind = "even"
	Odd      Kind = "odd"
	Low      Kind = "low"
	High     Kind = "high"
	Dozen    Kind = "dozen"
	Column   Kind = "column"
)

var ErrInvalidBet = errors.New("invalid roulette bet")

var red = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Bet is one chip placement. Value is the number for straight bets and the
// dozen or column index (1-3) for those kinds; other kinds ignore it.
type Bet struct {
	Kind  Kind         `json:"kind" validate:"required,oneof=straight red black even odd low high dozen column"`
	Value int          `json:"value" validate:"min=0,max=36"`
	Stake money.Amount `json:"stake" validate:"gt=0"`
}

type BetResult struct {
	Bet
	Won    bool         `json:"won"`
	Payout money.Amount `json:"payout"`
}

type Outcome struct {
	Pocket int          `json:"pocket"`
	Color  string       `json:"color"`
	Bets   []BetResult  `json:"bets"`
	Stake  money.Amount `json:"stake"`
	Payout money.Amount `json:"payout"`
	RTP    float64      `json:"rtp"`
}

// Color returns "green", "red" or "black".
func Color(pocket int) string {
	switch {
	case pocket == 0:
		return "green"
	case red[pocket]:
		return "red"
	default:
		return "black"
	}
}

func odds(k Kind) int64 {
	switch k {
	case Straight:
		return 35
	case Dozen, Column:
		return 2
	default:
		return 1
	}
}

func (b Bet) validate() error {
	if b.Stake <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidBet)
	}
	if b.Stake > MaxChip {
		return fmt.Errorf("%w: stake %s too large", ErrInvalidBet, b.Stake)
	}
	switch b.Kind {
	case Straight:
		if b.Value < 0 || b.Value > 36 {
			return fmt.Errorf("%w: straight value %d", ErrInvalidBet, b.Value)
		}
	case Dozen, Column:
		if b.Value < 1 || b.Value > 3 {
			return fmt.Errorf("%w: %s value %d", ErrInvalidBet, b.Kind, b.Value)
		}
	case Red, Black, Even, Odd, Low, High:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidBet, b.Kind)
	}
	return nil
}

// Wins reports whether the bet wins when the ball lands on pocket.
func (b Bet) Wins(pocket int) bool {
	if b.Kind == Straight {
		return pocket == b.Value
	}
	if pocket == 0 {
		return false
	}
	switch b.Kind {
	case Red:
		return red[pocket]
	case Black:
		return !red[pocket]
	case Even:
		return pocket%2 == 0
	case Odd:
		return pocket%2 == 1
	case Low:
		return pocket <= 18
	case High:
		return pocket >= 19
	case Dozen:
		return (pocket-1)/12+1 == b.Value
	case Column:
		return (pocket-1)%3+1 == b.Value
	}
	return false
}

// Payout is stake times (odds+1) for a winning bet.
func (b Bet) Payout(pocket int) money.Amount {
	if !b.Wins(pocket) {
		return 0
	}
	return b.Stake * money.Amount(odds(b.Kind)+1)
}

// TotalStake validates every chip and returns their sum. Each chip must
// also be within limit; a sum that would overflow is rejected.
func TotalStake(bets []Bet, limit money.Amount) (money.Amount, error) {
	if len(bets) == 0 {
		return 0, fmt.Errorf("%w: no bets", ErrInvalidBet)
	}
	if len(bets) > MaxBets {
		return 0, fmt.Errorf("%w: %d bets, at most %d", ErrInvalidBet, len(bets), MaxBets)
	}
	var total money.Amount
	for _, b := range bets {
		if err := b.validate(); err != nil {
			return 0, err
		}
		if b.Stake > limit {
			return 0, fmt.Errorf("%w: chip %s above %s", gamemath.ErrStakeOutOfRange, b.Stake, limit)
		}
		if total > math.MaxInt64-b.Stake {
			return 0, fmt.Errorf("%w: total stake overflows", ErrInvalidBet)
		}
		total += b.Stake
	}
	return total, nil
}

func totalPayout(bets []Bet, pocket int) money.Amount {
	var sum money.Amount
	for _, b := range bets {
		sum += b.Payout(pocket)
	}
	return sum
}

// Spin validates bets, draws a pocket and settles every bet. When rtp is
// below the natural return, the draw is replaced with the worst pocket for
// the player often enough that the expected return equals rtp.
func Spin(src fair.Source, bets []Bet, rtp float64) (Outcome, error) {
	stake, err := TotalStake(bets, MaxChip)
	if err != nil {
		return Outcome{}, err
	}

	var sum float64
	worst := []int{}
	minPay := money.Amount(-1)
	for p := 0; p < Pockets; p++ {
		pay := totalPayout(bets, p)
		sum += float64(pay)
		switch {
		case minPay < 0 || pay < minPay:
			minPay = pay
			worst = []int{p}
		case pay == minPay:
			worst = append(worst, p)
		}
	}
	natural := sum / Pockets / float64(stake)
	floor := float64(minPay) / float64(stake)

	pocket := -1
	if q := gamemath.ForceLossProbability(natural, floor, rtp); q > 0 && src.Float64() < q {
		pocket = worst[src.Intn(len(worst))]
	}
	if pocket < 0 {
		pocket = src.Intn(Pockets)
	}

	out := Outcome{
		Pocket: pocket,
		Color:  Color(pocket),
		Bets:   make([]BetResult, 0, len(bets)),
		Stake:  stake,
		RTP:    rtp,
	}
	for _, b := range bets {
		pay := b.Payout(pocket)
		out.Bets = append(out.Bets, BetResult{Bet: b, Won: pay > 0, Payout: pay})
		out.Payout += pay
	}
	return out, nil
}
