// Package mines implements the 5x5 mines game as a state machine over a
// serializable Game value.
package mines

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/qmuntal/stateless"
	"github.com/shopspring/decimal"
)

// Tiles on the board.
const Tiles = 25

const (
	StatePlaying   = "playing"
	StateBusted    = "busted"
	StateCashedOut = "cashed_out"
)

const (
	triggerSafe    = "safe"
	triggerMine    = "mine"
	triggerCashout = "cashout"
)

var (
	ErrInvalidMines  = errors.New("mines must be between 1 and 24")
	ErrInvalidTile   = errors.New("tile out of range")
	ErrTileRevealed  = errors.New("tile already revealed")
	ErrNotPlaying    = errors.New("round is not in play")
	ErrNothingToCash = errors.New("reveal at least one tile before cashing out")
)

// Game is the full round state, persisted between requests.
type Game struct {
	Stake     money.Amount `json:"stake"`
	MineCount int          `json:"mineCount"`
	RTP       float64      `json:"rtp"`
	Mines     []int        `json:"mines"`
	Revealed  []int        `json:"revealed"`
	HitTile   int          `json:"hitTile"`
	State     string       `json:"state"`
}

// New places mineCount mines with a Fisher-Yates shuffle drawn from src.
func New(src fair.Source, stake money.Amount, mineCount int, rtp float64) (*Game, error) {
	if mineCount < 1 || mineCount > Tiles-1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMines, mineCount)
	}
	tiles := make([]int, Tiles)
	for i := range tiles {
		tiles[i] = i
	}
	fair.Shuffle(src, Tiles, func(i, j int) { tiles[i], tiles[j] = tiles[j], tiles[i] })
	mines := append([]int(nil), tiles[:mineCount]...)
	sort.Ints(mines)
	return &Game{
		Stake:     stake,
		MineCount: mineCount,
		RTP:       rtp,
		Mines:     mines,
		Revealed:  []int{},
		HitTile:   -1,
		State:     StatePlaying,
	}, nil
}

func binom(n, k int) int64 {
	c := int64(1)
	for i := 0; i < k; i++ {
		c = c * int64(n-i) / int64(i+1)
	}
	return c
}

// Multiplier after safe reveals: rtp * C(25,safe) / C(25-mines,safe), floored to 4dp.
func Multiplier(mineCount, safe int, rtp float64) decimal.Decimal {
	if safe > Tiles-mineCount {
		safe = Tiles - mineCount
	}
	num := decimal.NewFromFloat(rtp).Mul(decimal.NewFromInt(binom(Tiles, safe)))
	return num.DivRound(decimal.NewFromInt(binom(Tiles-mineCount, safe)), 20).RoundFloor(4)
}

func (g *Game) machine() *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) { return g.State, nil },
		func(_ context.Context, s stateless.State) error {
			g.State = s.(string)
			return nil
		},
		stateless.FiringQueued,
	)
	sm.Configure(StatePlaying).
		InternalTransition(triggerSafe, func(_ context.Context, args ...any) error {
			g.Revealed = append(g.Revealed, args[0].(int))
			return nil
		}).
		Permit(triggerMine, StateBusted).
		Permit(triggerCashout, StateCashedOut, func(_ context.Context, _ ...any) bool {
			return len(g.Revealed) > 0
		})
	sm.Configure(StateBusted).
		OnEntry(func(_ context.Context, args ...any) error {
			g.HitTile = args[0].(int)
			return nil
		})
	sm.Configure(StateCashedOut)
	return sm
}

func (g *Game) isMine(tile int) bool {
	i := sort.SearchInts(g.Mines, tile)
	return i < len(g.Mines) && g.Mines[i] == tile
}

func (g *Game) isRevealed(tile int) bool {
	for _, t := range g.Revealed {
		if t == tile {
			return true
		}
	}
	return false
}

// Reveal uncovers tile. It reports whether the tile held a mine. Revealing the
// last safe tile cashes out automatically.
func (g *Game) Reveal(ctx context.Context, tile int) (bool, error) {
	if g.State != StatePlaying {
		return false, ErrNotPlaying
	}
	if tile < 0 || tile >= Tiles {
		return false, fmt.Errorf("%w: %d", ErrInvalidTile, tile)
	}
	if g.isRevealed(tile) {
		return false, fmt.Errorf("%w: %d", ErrTileRevealed, tile)
	}
	sm := g.machine()
	if g.isMine(tile) {
		return true, sm.FireCtx(ctx, triggerMine, tile)
	}
	if err := sm.FireCtx(ctx, triggerSafe, tile); err != nil {
		return false, err
	}
	if len(g.Revealed) == Tiles-g.MineCount {
		return false, sm.FireCtx(ctx, triggerCashout)
	}
	return false, nil
}

// Cashout ends the round at the current multiplier.
func (g *Game) Cashout(ctx context.Context) error {
	if g.State != StatePlaying {
		return ErrNotPlaying
	}
	if len(g.Revealed) == 0 {
		return ErrNothingToCash
	}
	return g.machine().FireCtx(ctx, triggerCashout)
}

func (g *Game) Done() bool { return g.State != StatePlaying }

// CurrentMultiplier is the multiplier a cashout would pay now.
func (g *Game) CurrentMultiplier() decimal.Decimal {
	return Multiplier(g.MineCount, len(g.Revealed), g.RTP)
}

// Payout is non-zero only for a cashed out round.
func (g *Game) Payout() money.Amount {
	if g.State != StateCashedOut {
		return 0
	}
	return g.Stake.MulRatio(g.CurrentMultiplier())
}

// View is what the player may see. Mine positions stay hidden while playing.
type View struct {
	State          string       `json:"state"`
	Stake          money.Amount `json:"stake"`
	MineCount      int          `json:"mineCount"`
	Revealed       []int        `json:"revealed"`
	Multiplier     string       `json:"multiplier"`
	NextMultiplier string       `json:"nextMultiplier,omitempty"`
	Payout         money.Amount `json:"payout"`
	Mines          []int        `json:"mines,omitempty"`
	HitTile        *int         `json:"hitTile,omitempty"`
}

func (g *Game) View() View {
	v := View{
		State:      g.State,
		Stake:      g.Stake,
		MineCount:  g.MineCount,
		Revealed:   append([]int{}, g.Revealed...),
		Multiplier: g.CurrentMultiplier().StringFixed(4),
		Payout:     g.Payout(),
	}
	if !g.Done() {
		v.NextMultiplier = Multiplier(g.MineCount, len(g.Revealed)+1, g.RTP).StringFixed(4)
		return v
	}
	v.Mines = append([]int{}, g.Mines...)
	if g.State == StateBusted {
		hit := g.HitTile
		v.HitTile = &hit
	}
	return v
}
