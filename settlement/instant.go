package settlement

import (
	"context"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/roulette"
	"github.com/Ashenafi-pixel/casino-settlement/games/slots"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
)

// Roulette spins once for all bets. The stake is their sum; every chip
// is held to the game's max bet on its own before they are added.
func (s *Service) Roulette(ctx context.Context, userID string, bets []roulette.Bet, key string) (*Play, error) {
	g, err := s.games.Get(gamemath.Roulette)
	if err != nil {
		return nil, err
	}
	stake, err := roulette.TotalStake(bets, g.Settings.MaxBet)
	if err != nil {
		return nil, err
	}
	if err := g.Settings.CheckStake(stake); err != nil {
		return nil, err
	}
	st := g.Settings
	if prev, err := s.lookup(ctx, userID, key); err != nil || prev != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, prev, nil)
	}

	seed, err := s.ledger.NextSeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := roulette.Spin(seed.Stream(), bets, st.RTP)
	if err != nil {
		return nil, err
	}
	bet, replayed, err := s.placeSettled(ctx, ledger.BetRequest{
		UserID: userID, Game: gamemath.Roulette, Stake: stake, IdempotencyKey: key, Seed: seed,
	}, out.Payout, out)
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replay(ctx, bet, nil)
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: out})
}

// slotsMath is the registered slots table tuned to the configured RTP.
func (s *Service) slotsMath(rtp float64) *gamemath.GameMath {
	base := gamemath.DefaultSlotsMath()
	if s.tables != nil {
		if m := s.tables.Get(gamemath.Slots); m != nil && len(m.PrizeTable) > 0 {
			base = m
		}
	}
	tuned, err := slots.Tune(base, rtp)
	if err != nil {
		s.log.Warn("slots: table cannot reach rtp, using it untuned",
			zap.String("model_id", base.ModelID), zap.Float64("rtp", rtp), zap.Error(err))
		return base
	}
	return tuned
}

func (s *Service) Slots(ctx context.Context, userID string, stake money.Amount, key string) (*Play, error) {
	st, err := s.settings(gamemath.Slots, stake)
	if err != nil {
		return nil, err
	}
	if prev, err := s.lookup(ctx, userID, key); err != nil || prev != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, prev, nil)
	}

	math := s.slotsMath(st.RTP)
	seed, err := s.ledger.NextSeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := slots.Spin(seed.Stream(), stake, math)
	if err != nil {
		return nil, err
	}
	bet, replayed, err := s.placeSettled(ctx, ledger.BetRequest{
		UserID: userID, Game: gamemath.Slots, Stake: stake, IdempotencyKey: key, Seed: seed,
	}, out.Payout, out)
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replay(ctx, bet, nil)
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: out})
}
