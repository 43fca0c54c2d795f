package settlement

import (
	"context"
	"errors"

	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games/mines"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

func minesView(r *round.Round) (interface{}, error) {
	var g mines.Game
	if err := r.Decode(&g); err != nil {
		return nil, err
	}
	return g.View(), nil
}

// MinesStart takes the stake and lays out the board.
func (s *Service) MinesStart(ctx context.Context, userID string, stake money.Amount, mineCount int, key string) (*Play, error) {
	st, err := s.settings(gamemath.Mines, stake)
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
		return s.replay(ctx, prev, minesView)
	}
	if _, err := s.rounds.Active(ctx, userID, gamemath.Mines); err == nil {
		return nil, ErrRoundInProgress
	} else if !errors.Is(err, round.ErrNotFound) {
		return nil, err
	}
	if mineCount < 1 || mineCount >= mines.Tiles {
		return nil, mines.ErrInvalidMines
	}

	seed, err := s.ledger.NextSeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	g, err := mines.New(seed.Stream(), stake, mineCount, st.RTP)
	if err != nil {
		return nil, err
	}
	bet, replayed, err := s.open(ctx, ledger.BetRequest{
		UserID: userID, Game: gamemath.Mines, Stake: stake, IdempotencyKey: key, Seed: seed,
	}, g)
	if err != nil {
		return nil, err
	}
	if replayed {
		return s.replay(ctx, bet, minesView)
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: g.View()})
}

// MinesReveal uncovers one tile. Hitting a mine or clearing the board
// settles the bet.
func (s *Service) MinesReveal(ctx context.Context, userID, betID string, tile int) (*Play, error) {
	return s.minesAction(ctx, userID, betID, func(g *mines.Game) error {
		_, err := g.Reveal(ctx, tile)
		return err
	})
}

// MinesCashout settles at the current multiplier.
func (s *Service) MinesCashout(ctx context.Context, userID, betID string) (*Play, error) {
	return s.minesAction(ctx, userID, betID, func(g *mines.Game) error {
		return g.Cashout(ctx)
	})
}

func (s *Service) minesAction(ctx context.Context, userID, betID string, act func(*mines.Game) error) (*Play, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.load(ctx, userID, gamemath.Mines, betID)
	if err != nil {
		return nil, err
	}
	var g mines.Game
	if err := r.Decode(&g); err != nil {
		return nil, err
	}
	if !g.Done() {
		if err := act(&g); err != nil {
			return nil, err
		}
	}
	if g.Done() {
		bet, err := s.settle(ctx, r, g.Payout(), g.View())
		if err != nil {
			return nil, err
		}
		return s.withBalance(ctx, &Play{Bet: bet, Round: g.View()})
	}
	if err := r.Encode(&g); err != nil {
		return nil, err
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

// MinesActive returns the user's open mines round.
func (s *Service) MinesActive(ctx context.Context, userID string) (*Play, error) {
	r, err := s.rounds.Active(ctx, userID, gamemath.Mines)
	if errors.Is(err, round.ErrNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	bet, err := s.ledger.Bet(ctx, r.BetID)
	if err != nil {
		return nil, err
	}
	view, err := minesView(r)
	if err != nil {
		return nil, err
	}
	return s.withBalance(ctx, &Play{Bet: bet, Round: view})
}
