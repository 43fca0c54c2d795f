package settlement

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

// Void cancels an open bet, refunds its stake and drops its round. It is
// the operator's way out of a round that cannot finish normally.
func (s *Service) Void(ctx context.Context, betID string) (*ledger.Bet, error) {
	bet, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, bet.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.rounds.Get(ctx, betID)
	switch {
	case errors.Is(err, round.ErrNotFound):
		r = nil
	case err != nil:
		return nil, err
	}
	voided, err := s.ledger.VoidBet(ctx, betID, func(ctx context.Context, tx *sqlx.Tx, _ *ledger.Bet) error {
		if r == nil {
			return nil
		}
		return s.rounds.Delete(ctx, tx, betID, r.Version)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("bet voided", zap.String("bet_id", betID), zap.String("user_id", voided.UserID),
		zap.String("game", voided.Game), zap.Stringer("refund", voided.Stake))
	return voided, nil
}
