package gamemath

import (
	"errors"
	"fmt"
	"math"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
)

// LoseTier is the tier id that pays nothing.
const LoseTier = "LOSE"

var (
	ErrInvalidTable   = errors.New("invalid prize table")
	ErrUnreachableRTP = errors.New("target rtp unreachable for prize table")
)

// GameMath is the stored game math payload (schema_version 1).
type GameMath struct {
	SchemaVersion int         `json:"schema_version"`
	ModelID       string      `json:"model_id"`
	ModelVersion  string      `json:"model_version"`
	Mechanic      Mechanic    `json:"mechanic"`
	MathMode      string      `json:"math_mode"`
	WinLogic      string      `json:"win_logic"`
	PrizeTable    []PrizeTier `json:"prize_table"`
	Stats         *GameStats  `json:"stats,omitempty"`
}

type Mechanic struct {
	Type       string `json:"type"`
	MatchCount int    `json:"match_count,omitempty"`
}

type PrizeTier struct {
	Tier       string  `json:"tier"`
	Multiplier float64 `json:"multiplier"`
	Weight     int64   `json:"weight"`
}

type GameStats struct {
	ComputedRTP float64 `json:"computed_rtp"`
	HitRate     float64 `json:"hit_rate"`
}

func totalWeight(table []PrizeTier) int64 {
	var total int64
	for _, t := range table {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	return total
}

// PickTier selects a tier from the prize table by weight.
// Returns false if the table is empty, has no positive weight, or its total
// weight does not fit in 32 bits.
func (g *GameMath) PickTier(src fair.Source) (PrizeTier, bool) {
	if g == nil || len(g.PrizeTable) == 0 {
		return PrizeTier{}, false
	}
	total := totalWeight(g.PrizeTable)
	if total <= 0 || total > math.MaxUint32 {
		return PrizeTier{}, false
	}
	idx := int64(src.Intn(int(total)))
	var cum int64
	for i := range g.PrizeTable {
		t := &g.PrizeTable[i]
		if t.Weight <= 0 {
			continue
		}
		cum += t.Weight
		if idx < cum {
			return *t, true
		}
	}
	return g.PrizeTable[len(g.PrizeTable)-1], true
}

// ComputeRTP is the expected return per unit staked: sum(w*m) / sum(w).
func ComputeRTP(table []PrizeTier) float64 {
	total := totalWeight(table)
	if total == 0 {
		return 0
	}
	var ev float64
	for _, t := range table {
		if t.Weight > 0 {
			ev += float64(t.Weight) * t.Multiplier
		}
	}
	return ev / float64(total)
}

// HitRate is the share of weight on paying tiers.
func HitRate(table []PrizeTier) float64 {
	total := totalWeight(table)
	if total == 0 {
		return 0
	}
	var hits int64
	for _, t := range table {
		if t.Weight > 0 && t.Multiplier > 0 {
			hits += t.Weight
		}
	}
	return float64(hits) / float64(total)
}

// TuneLoseWeight returns a copy of table whose LOSE weight makes ComputeRTP equal target.
// A LOSE tier is appended if the table has none.
func TuneLoseWeight(table []PrizeTier, target float64) ([]PrizeTier, error) {
	if target <= 0 || target > 1 {
		return nil, fmt.Errorf("%w: target %.4f", ErrUnreachableRTP, target)
	}
	var winEV float64
	var winWeight int64
	out := make([]PrizeTier, 0, len(table)+1)
	for _, t := range table {
		if t.Tier == LoseTier {
			continue
		}
		if t.Weight < 0 || t.Multiplier < 0 {
			return nil, fmt.Errorf("%w: tier %s", ErrInvalidTable, t.Tier)
		}
		winEV += float64(t.Weight) * t.Multiplier
		winWeight += t.Weight
		out = append(out, t)
	}
	if winWeight == 0 {
		return nil, fmt.Errorf("%w: no paying tiers", ErrInvalidTable)
	}
	lose := math.Round(winEV/target) - float64(winWeight)
	if lose < 0 {
		return nil, fmt.Errorf("%w: win tiers alone return %.4f", ErrUnreachableRTP, winEV/float64(winWeight))
	}
	if float64(winWeight)+lose > math.MaxUint32 {
		return nil, fmt.Errorf("%w: total weight overflows", ErrInvalidTable)
	}
	out = append(out, PrizeTier{Tier: LoseTier, Multiplier: 0, Weight: int64(lose)})
	return out, nil
}

// ForceLossProbability is the probability with which an engine should replace a
// fair draw by the worst outcome for the player so that the expected return drops
// from natural to target. floor is the return of that worst outcome. The result
// is clamped to [0, 1]; a target above natural never favours the player.
func ForceLossProbability(natural, floor, target float64) float64 {
	if target >= natural || natural <= floor {
		return 0
	}
	q := (natural - target) / (natural - floor)
	if q > 1 {
		return 1
	}
	return q
}
