// Package blackjack plays a single-hand blackjack round against the dealer:
// six-deck shoe, dealer stands on all 17s, blackjack pays 3:2, double on the
// first two cards.
package blackjack

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/qmuntal/stateless"
	"github.com/shopspring/decimal"
)

// Decks in the shoe.
const Decks = 6

const (
	StatePlayerTurn = "player_turn"
	StateDealerTurn = "dealer_turn"
	StateSettled    = "settled"
)

// Player actions.
const (
	Hit    = "hit"
	Stand  = "stand"
	Double = "double"

	triggerSettle = "settle"
)

// Results.
const (
	ResultBlackjack = "blackjack"
	ResultWin       = "win"
	ResultPush      = "push"
	ResultLose      = "lose"
	ResultBust      = "bust"
)

var (
	ErrInvalidAction = errors.New("invalid blackjack action")
	ErrNotYourTurn   = errors.New("not the player's turn")
	ErrCannotDouble  = errors.New("double is only allowed on the first two cards")
)

var blackjackPays = decimal.RequireFromString("2.5")

// Game is the full round state, persisted between requests.
type Game struct {
	Stake   money.Amount `json:"stake"`
	Doubled bool         `json:"doubled"`
	Shoe    []int        `json:"shoe"`
	Player  Hand         `json:"player"`
	Dealer  Hand         `json:"dealer"`
	State   string       `json:"state"`
	Result  string       `json:"result,omitempty"`
	Payout  money.Amount `json:"payout"`
}

// New shuffles a fresh shoe from src and deals two cards each. A natural on
// either side settles the round at once.
func New(ctx context.Context, src fair.Source, stake money.Amount) (*Game, error) {
	shoe := make([]int, Decks*52)
	for i := range shoe {
		shoe[i] = i % 52
	}
	fair.Shuffle(src, len(shoe), func(i, j int) { shoe[i], shoe[j] = shoe[j], shoe[i] })
	return deal(ctx, stake, shoe)
}

// deal draws from the end of shoe.
func deal(ctx context.Context, stake money.Amount, shoe []int) (*Game, error) {
	g := &Game{Stake: stake, Shoe: shoe, State: StatePlayerTurn}
	g.Player = append(g.Player, g.draw())
	g.Dealer = append(g.Dealer, g.draw())
	g.Player = append(g.Player, g.draw())
	g.Dealer = append(g.Dealer, g.draw())

	if g.Player.Blackjack() || g.Dealer.Blackjack() {
		if err := g.machine().FireCtx(ctx, triggerSettle); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Game) draw() Card {
	n := len(g.Shoe) - 1
	c := cardFromIndex(g.Shoe[n])
	g.Shoe = g.Shoe[:n]
	return c
}

func (g *Game) CanDouble() bool {
	return g.State == StatePlayerTurn && len(g.Player) == 2 && !g.Doubled
}

func (g *Game) Done() bool { return g.State == StateSettled }

func (g *Game) machine() *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) { return g.State, nil },
		func(_ context.Context, s stateless.State) error {
			g.State = s.(string)
			return nil
		},
		stateless.FiringQueued,
	)

	sm.Configure(StatePlayerTurn).
		InternalTransition(Hit, func(ctx context.Context, _ ...any) error {
			g.Player = append(g.Player, g.draw())
			switch {
			case g.Player.Busted():
				return sm.FireCtx(ctx, triggerSettle)
			case g.Player.Total() == 21:
				return sm.FireCtx(ctx, Stand)
			}
			return nil
		}).
		Permit(Stand, StateDealerTurn).
		Permit(Double, StateDealerTurn, func(_ context.Context, _ ...any) bool {
			return g.CanDouble()
		}).
		Permit(triggerSettle, StateSettled)

	sm.Configure(StateDealerTurn).
		OnEntryFrom(Double, func(_ context.Context, _ ...any) error {
			g.Doubled = true
			g.Stake *= 2
			g.Player = append(g.Player, g.draw())
			return nil
		}).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if !g.Player.Busted() {
				for g.Dealer.dealerMustDraw() {
					g.Dealer = append(g.Dealer, g.draw())
				}
			}
			return sm.FireCtx(ctx, triggerSettle)
		}).
		Permit(triggerSettle, StateSettled)

	sm.Configure(StateSettled).
		OnEntry(func(_ context.Context, _ ...any) error {
			g.settle()
			return nil
		})
	return sm
}

func (g *Game) settle() {
	p, d := g.Player.Total(), g.Dealer.Total()
	switch {
	case g.Player.Busted():
		g.Result = ResultBust
	case g.Player.Blackjack() && !g.Doubled:
		if g.Dealer.Blackjack() {
			g.Result = ResultPush
		} else {
			g.Result = ResultBlackjack
		}
	case g.Dealer.Blackjack():
		g.Result = ResultLose
	case g.Dealer.Busted() || p > d:
		g.Result = ResultWin
	case p == d:
		g.Result = ResultPush
	default:
		g.Result = ResultLose
	}

	switch g.Result {
	case ResultBlackjack:
		g.Payout = g.Stake.MulRatio(blackjackPays)
	case ResultWin:
		g.Payout = g.Stake * 2
	case ResultPush:
		g.Payout = g.Stake
	default:
		g.Payout = 0
	}
}

// Act applies a player action. A double must already be paid for: the caller
// debits the extra stake before calling Act.
func (g *Game) Act(ctx context.Context, action string) error {
	if g.State != StatePlayerTurn {
		return ErrNotYourTurn
	}
	switch action {
	case Hit, Stand:
	case Double:
		if !g.CanDouble() {
			return ErrCannotDouble
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return g.machine().FireCtx(ctx, action)
}

// View is what the player may see. The dealer's hole card stays hidden until
// the round settles.
type View struct {
	State       string       `json:"state"`
	Stake       money.Amount `json:"stake"`
	Doubled     bool         `json:"doubled"`
	Player      Hand         `json:"player"`
	PlayerTotal int          `json:"playerTotal"`
	Dealer      Hand         `json:"dealer"`
	DealerTotal int          `json:"dealerTotal"`
	CanDouble   bool         `json:"canDouble"`
	Result      string       `json:"result,omitempty"`
	Payout      money.Amount `json:"payout"`
}

func (g *Game) View() View {
	v := View{
		State:       g.State,
		Stake:       g.Stake,
		Doubled:     g.Doubled,
		Player:      append(Hand{}, g.Player...),
		PlayerTotal: g.Player.Total(),
		CanDouble:   g.CanDouble(),
		Result:      g.Result,
		Payout:      g.Payout,
	}
	if g.Done() {
		v.Dealer = append(Hand{}, g.Dealer...)
	} else {
		v.Dealer = Hand{g.Dealer[0]}
	}
	v.DealerTotal = v.Dealer.Total()
	return v
}
