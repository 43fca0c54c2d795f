// Package slots settles three-reel slot spins from a weighted prize table.
package slots

import (
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/shopspring/decimal"
)

// Reel symbols.
const (
	SymbolCherry = "cherry"
	SymbolLemon  = "lemon"
	SymbolBell   = "bell"
	SymbolStar   = "star"
	SymbolSeven  = "seven"
)

var symbols = []string{SymbolCherry, SymbolLemon, SymbolBell, SymbolStar, SymbolSeven}

var ErrNoTable = errors.New("slots: no usable prize table")

// Outcome is the result of one spin.
type Outcome struct {
	Symbols    [3]string    `json:"symbols"`
	Tier       string       `json:"tier"`
	Multiplier float64      `json:"multiplier"`
	Match      bool         `json:"match"`
	Stake      money.Amount `json:"stake"`
	Payout     money.Amount `json:"payout"`
	RTP        float64      `json:"rtp"`
}

// Tune returns base with its LOSE weight adjusted so the table returns rtp.
func Tune(base *gamemath.GameMath, rtp float64) (*gamemath.GameMath, error) {
	if base == nil {
		return nil, ErrNoTable
	}
	table, err := gamemath.TuneLoseWeight(base.PrizeTable, rtp)
	if err != nil {
		return nil, err
	}
	tuned := *base
	tuned.PrizeTable = table
	tuned.Stats = &gamemath.GameStats{
		ComputedRTP: gamemath.ComputeRTP(table),
		HitRate:     gamemath.HitRate(table),
	}
	return &tuned, nil
}

func isSymbol(s string) bool {
	for _, sym := range symbols {
		if sym == s {
			return true
		}
	}
	return false
}

// Spin picks a tier by weight, then renders it: three identical symbols for
// a paying tier, a non-matching line for LOSE.
func Spin(src fair.Source, stake money.Amount, math *gamemath.GameMath) (Outcome, error) {
	if stake <= 0 {
		return Outcome{}, fmt.Errorf("slots: stake must be positive")
	}
	tier, ok := math.PickTier(src)
	if !ok {
		return Outcome{}, ErrNoTable
	}
	var s [3]string
	if tier.Tier == gamemath.LoseTier || tier.Multiplier == 0 {
		for i := range s {
			s[i] = symbols[src.Intn(len(symbols))]
		}
		for s[0] == s[1] && s[1] == s[2] {
			s[2] = symbols[src.Intn(len(symbols))]
		}
	} else {
		sym := tier.Tier
		if !isSymbol(sym) {
			sym = symbols[src.Intn(len(symbols))]
		}
		s[0], s[1], s[2] = sym, sym, sym
	}
	payout := stake.MulRatio(decimal.NewFromFloat(tier.Multiplier))
	out := Outcome{
		Symbols:    s,
		Tier:       tier.Tier,
		Multiplier: tier.Multiplier,
		Match:      payout > 0,
		Stake:      stake,
		Payout:     payout,
	}
	if math.Stats != nil {
		out.RTP = math.Stats.ComputedRTP
	}
	return out, nil
}
