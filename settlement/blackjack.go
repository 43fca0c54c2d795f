package settlement

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/blackjack"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

func blackjackView(r *round.Round) (interface{}, error) {
	var g blackjack.Game
	if err := r.Decode(&g); err != nil {
		return nil, err
	}
	return g.View(), nil
}

// BlackjackStart deals a hand. A natural on either side settles at once.
func (s *Service) BlackjackStart(ctx context.Context, userID string, stake money.Amount, key string) (*Play, error) {
	if _, err := s.settings(gamemath.Blackjack, stake); err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if prev, err := s.lookup(ctx, userID, key); err != nil || prev != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, prev, blackjackView)
	}
	if _, err := s.rounds.Active(ctx, userID, gamemath.Blackjack); err == nil {
		return nil, ErrRoundInProgress
	} else if !errors.Is(err, round.ErrNotFound) {
		return nil, err
	}

	seed, err := s.ledger.NextSeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	g, err := blackjack.New(ctx, seed.Stream(), stake)
	if err != nil {
		return nil, err
	}
	req := ledger.BetRequest{
		UserID: userID, Game: gamemath.Blackjack, Stake: stake, IdempotencyKey: key, Seed: seed,
	}
	var (
		bet      *ledger.Bet
		replayed bool
	)
	if g.Done() {
		bet, replayed, err = s.placeSettled(ctx, req, g.Payout, g.View())
	} else {
		bet, replayed, err = s.open(ctx, req, g)
	}
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replay(ctx, bet, blackjackView)
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: g.View()})
}

// BlackjackAct applies hit, stand or double. A double debits the extra
// stake together with the new round state.
func (s *Service) BlackjackAct(ctx context.Context, userID, betID, action string) (*Play, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.load(ctx, userID, gamemath.Blackjack, betID)
	if err != nil {
		return nil, err
	}
	var g blackjack.Game
	if err := r.Decode(&g); err != nil {
		return nil, err
	}

	if !g.Done() {
		extra := g.Stake
		if err := g.Act(ctx, action); err != nil {
			return nil, err
		}
		if err := r.Encode(&g); err != nil {
			return nil, err
		}
		if action == blackjack.Double {
			_, err = s.ledger.RaiseStake(ctx, betID, extra, func(ctx context.Context, tx *sqlx.Tx, _ *ledger.Bet) error {
				return s.rounds.Update(ctx, tx, r)
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if g.Done() {
		bet, err := s.settle(ctx, r, g.Payout, g.View())
		if err != nil {
			return nil, err
		}
		return s.withBalance(ctx, &Play{Bet: bet, Round: g.View()})
	}
	if err := s.rounds.Update(ctx, nil, r); err != nil {
		return nil, err
	}
	bet, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return nil, err
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: g.View()})
}
