package settlement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

// statefulGames are the games whose outcome is drawn at start and kept in
// a round until it settles.
var statefulGames = []string{gamemath.Mines, gamemath.Blackjack, gamemath.Crash}

// RotateSeed reveals the player's server seed and starts a new pair. The
// seed of an open round must stay secret, so rotation waits until every
// round of the player has settled.
func (s *Service) RotateSeed(ctx context.Context, userID, clientSeed string) (*ledger.RevealedSeed, *ledger.Seed, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	for _, game := range statefulGames {
		_, err := s.rounds.Active(ctx, userID, game)
		switch {
		case err == nil:
			return nil, nil, fmt.Errorf("%w: finish the %s round before rotating", ErrRoundInProgress, game)
		case !errors.Is(err, round.ErrNotFound):
			return nil, nil, err
		}
	}
	revealed, next, err := s.ledger.RotateSeed(ctx, userID, clientSeed)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("seed rotated", zap.String("user_id", userID), zap.String("revealed_hash", revealed.ServerSeedHash))
	return revealed, next, nil
}
