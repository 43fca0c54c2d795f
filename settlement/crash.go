package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/crash"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

var one = decimal.NewFromInt(1)

// autoStep converts an auto cashout multiplier; zero disables it.
func autoStep(m decimal.Decimal) (int, error) {
	if m.IsZero() {
		return 0, nil
	}
	if m.LessThanOrEqual(one) {
		return 0, crash.ErrInvalidAutoStep
	}
	step := crash.StepFor(m)
	if step > crash.MaxStep {
		step = crash.MaxStep
	}
	return step, nil
}

// CrashStart opens a crash round. The round starts climbing at once.
func (s *Service) CrashStart(ctx context.Context, userID string, stake money.Amount, autoCashout decimal.Decimal, key string) (*Play, error) {
	st, err := s.settings(gamemath.Crash, stake)
	if err != nil {
		return nil, err
	}
	auto, err := autoStep(autoCashout)
	if err != nil {
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
		return s.replay(ctx, prev, s.crashView)
	}
	if active, err := s.rounds.Active(ctx, userID, gamemath.Crash); err == nil {
		// A finished round that nobody has polled yet does not block.
		done, err := s.resolveCrash(ctx, active, false)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, ErrRoundInProgress
		}
	} else if !errors.Is(err, round.ErrNotFound) {
		return nil, err
	}

	seed, err := s.ledger.NextSeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cr, err := crash.NewRound(seed.Stream(), stake, st.RTP, auto, now)
	if err != nil {
		return nil, err
	}
	req := ledger.BetRequest{
		UserID: userID, Game: gamemath.Crash, Stake: stake, IdempotencyKey: key, Seed: seed,
	}
	var (
		bet      *ledger.Bet
		replayed bool
	)
	if cr.Resolve(now) {
		bet, replayed, err = s.placeSettled(ctx, req, cr.Payout(), cr.View(now))
	} else {
		bet, replayed, err = s.open(ctx, req, cr)
	}
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replay(ctx, bet, s.crashView)
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: cr.View(now)})
}

func (s *Service) crashView(r *round.Round) (interface{}, error) {
	var cr crash.Round
	if err := r.Decode(&cr); err != nil {
		return nil, err
	}
	return cr.View(s.now()), nil
}

// resolveCrash settles r if it has crashed or hit its auto cashout. With
// expire set, a round older than the maximum round time is ended as a loss.
func (s *Service) resolveCrash(ctx context.Context, r *round.Round, expire bool) (bool, error) {
	var cr crash.Round
	if err := r.Decode(&cr); err != nil {
		return false, err
	}
	now := s.now()
	done := cr.Resolve(now)
	if !done && expire && now.UnixMilli()-cr.StartedAt > s.crashMaxRound.Milliseconds() {
		cr.Expire()
		done = true
	}
	if !done {
		return false, nil
	}
	_, err := s.settle(ctx, r, cr.Payout(), cr.View(now))
	return true, err
}

// CrashCashout cashes out at the multiplier at, or at the current multiplier
// when at is zero. A round that already crashed or auto cashed out is
// settled and returned as it ended.
func (s *Service) CrashCashout(ctx context.Context, userID, betID string, at decimal.Decimal) (*Play, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.load(ctx, userID, gamemath.Crash, betID)
	if errors.Is(err, ErrRoundNotFound) {
		if _, ferr := s.finished(ctx, userID, gamemath.Crash, betID); ferr == nil {
			return nil, crash.ErrNotRunning
		}
	}
	if err != nil {
		return nil, err
	}
	var cr crash.Round
	if err := r.Decode(&cr); err != nil {
		return nil, err
	}
	step := -1
	if !at.IsZero() {
		if at.LessThan(one) {
			return nil, crash.ErrInvalidAutoStep
		}
		if at.GreaterThan(crash.Multiplier(crash.MaxStep)) {
			return nil, crash.ErrStepNotReached
		}
		step = crash.StepFor(at)
	}
	now := s.now()
	if err := cr.Cashout(step, now); err != nil && !errors.Is(err, crash.ErrNotRunning) {
		return nil, err
	}
	bet, err := s.settle(ctx, r, cr.Payout(), cr.View(now))
	if err != nil {
		return nil, err
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: cr.View(now)})
}

// CrashStatus reports a round, settling it first if it has ended.
func (s *Service) CrashStatus(ctx context.Context, userID, betID string) (*Play, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.load(ctx, userID, gamemath.Crash, betID)
	if errors.Is(err, ErrRoundNotFound) {
		return s.finished(ctx, userID, gamemath.Crash, betID)
	}
	if err != nil {
		return nil, err
	}
	var cr crash.Round
	if err := r.Decode(&cr); err != nil {
		return nil, err
	}
	now := s.now()
	if cr.Resolve(now) {
		bet, err := s.settle(ctx, r, cr.Payout(), cr.View(now))
		if err != nil {
			return nil, err
		}
		return s.withBalance(ctx, &Play{Bet: bet, Round: cr.View(now)})
	}
	bet, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return nil, err
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: cr.View(now)})
}

// SweepCrash settles every crash round that has ended or outlived the
// maximum round time. It returns how many rounds it settled.
func (s *Service) SweepCrash(ctx context.Context) (int, error) {
	list, err := s.rounds.List(ctx, gamemath.Crash)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range list {
		r := list[i]
		done, err := s.sweepOne(ctx, &r)
		if err != nil {
			s.log.Warn("crash sweep: round not settled",
				zap.String("bet_id", r.BetID), zap.String("user_id", r.UserID), zap.Error(err))
			continue
		}
		if done {
			settled++
		}
	}
	if settled > 0 {
		s.log.Info("crash sweep", zap.Int("settled", settled), zap.Int("open", len(list)-settled))
	}
	return settled, ctx.Err()
}

func (s *Service) sweepOne(ctx context.Context, r *round.Round) (bool, error) {
	unlock, err := s.lockUser(ctx, r.UserID)
	if err != nil {
		return false, err
	}
	defer unlock()
	// Re-read under the lock: a request may have settled it meanwhile.
	fresh, err := s.rounds.Get(ctx, r.BetID)
	if errors.Is(err, round.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.resolveCrash(ctx, fresh, true)
}
