// Package settlement runs bets end to end: it checks the game settings,
// draws the outcome from the user's seed, and moves money through the
// ledger. Stateful games keep their round in the round store between
// requests.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Ashenafi-pixel/casino-settlement/feed"
	"github.com/Ashenafi-pixel/casino-settlement/gamemath"
	"github.com/Ashenafi-pixel/casino-settlement/games"
	"github.com/Ashenafi-pixel/casino-settlement/ledger"
	"github.com/Ashenafi-pixel/casino-settlement/lock"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/Ashenafi-pixel/casino-settlement/round"
)

var (
	ErrRoundInProgress = errors.New("a round of this game is already open")
	ErrRoundNotFound   = errors.New("round not found")
)

// DefaultCrashMaxRound is how long a crash round may stay open before the
// sweeper ends it.
const DefaultCrashMaxRound = 10 * time.Minute

// Publisher receives every settled bet.
type Publisher interface {
	Publish(feed.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(feed.Event) {}

type Options struct {
	Ledger        *ledger.Ledger
	Rounds        *round.Store
	Games         *games.Registry
	Tables        *gamemath.Store
	Locks         lock.Locker
	Feed          Publisher
	Log           *zap.Logger
	CrashMaxRound time.Duration
	Now           func() time.Time
}

type Service struct {
	ledger        *ledger.Ledger
	rounds        *round.Store
	games         *games.Registry
	tables        *gamemath.Store
	locks         lock.Locker
	feed          Publisher
	log           *zap.Logger
	crashMaxRound time.Duration
	now           func() time.Time
}

func New(o Options) *Service {
	s := &Service{
		ledger:        o.Ledger,
		rounds:        o.Rounds,
		games:         o.Games,
		tables:        o.Tables,
		locks:         o.Locks,
		feed:          o.Feed,
		log:           o.Log,
		crashMaxRound: o.CrashMaxRound,
		now:           o.Now,
	}
	if s.locks == nil {
		s.locks = lock.NewMemory()
	}
	if s.feed == nil {
		s.feed = nopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.crashMaxRound <= 0 {
		s.crashMaxRound = DefaultCrashMaxRound
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Play is the answer to every betting call. Round holds the player view of
// a stateful round, or of the finished round once settled.
type Play struct {
	Bet      *ledger.Bet  `json:"bet"`
	Replayed bool         `json:"replayed,omitempty"`
	Balance  money.Amount `json:"balance"`
	Round    interface{}  `json:"round,omitempty"`
}

// settings returns the game's settings after checking stake against them.
func (s *Service) settings(game string, stake money.Amount) (gamemath.Settings, error) {
	g, err := s.games.Get(game)
	if err != nil {
		return gamemath.Settings{}, err
	}
	if err := g.Settings.CheckStake(stake); err != nil {
		return gamemath.Settings{}, err
	}
	return g.Settings, nil
}

// lookup returns the bet already placed under key, or nil.
func (s *Service) lookup(ctx context.Context, userID, key string) (*ledger.Bet, error) {
	b, err := s.ledger.BetByKey(ctx, userID, key)
	if errors.Is(err, ledger.ErrBetNotFound) {
		return nil, nil
	}
	return b, err
}

// replay answers a repeated request from what the first one stored.
func (s *Service) replay(ctx context.Context, bet *ledger.Bet, view func(*round.Round) (interface{}, error)) (*Play, error) {
	p := &Play{Bet: bet, Replayed: true}
	switch {
	case bet.Status == ledger.BetOpen && view != nil:
		r, err := s.rounds.Get(ctx, bet.ID)
		if err == nil {
			if p.Round, err = view(r); err != nil {
				return nil, err
			}
		}
	case len(bet.Outcome) > 0:
		p.Round = json.RawMessage(bet.Outcome)
	}
	return s.withBalance(ctx, p)
}

func (s *Service) withBalance(ctx context.Context, p *Play) (*Play, error) {
	bal, err := s.ledger.Balance(ctx, p.Bet.UserID)
	if err != nil {
		return nil, err
	}
	p.Balance = bal
	return p, nil
}

// open places the stake and stores the round in the same transaction.
func (s *Service) open(ctx context.Context, req ledger.BetRequest, state interface{}) (*ledger.Bet, bool, error) {
	r := &round.Round{UserID: req.UserID, Game: req.Game}
	if err := r.Encode(state); err != nil {
		return nil, false, err
	}
	req.InTx = func(ctx context.Context, tx *sqlx.Tx, b *ledger.Bet) error {
		r.BetID = b.ID
		return s.rounds.Insert(ctx, tx, r)
	}
	return s.ledger.PlaceBet(ctx, req)
}

// placeSettled records a bet whose outcome is final at placement.
func (s *Service) placeSettled(ctx context.Context, req ledger.BetRequest, payout money.Amount, outcome interface{}) (*ledger.Bet, bool, error) {
	b, err := json.Marshal(outcome)
	if err != nil {
		return nil, false, err
	}
	bet, replayed, err := s.ledger.PlaceAndSettle(ctx, req, payout, b)
	if err != nil {
		return nil, false, err
	}
	if !replayed {
		s.publish(ctx, bet)
	}
	return bet, replayed, nil
}

// settle pays out an open round and deletes it in one transaction.
func (s *Service) settle(ctx context.Context, r *round.Round, payout money.Amount, outcome interface{}) (*ledger.Bet, error) {
	b, err := json.Marshal(outcome)
	if err != nil {
		return nil, err
	}
	version := r.Version
	bet, err := s.ledger.SettleBet(ctx, r.BetID, payout, b, func(ctx context.Context, tx *sqlx.Tx, _ *ledger.Bet) error {
		return s.rounds.Delete(ctx, tx, r.BetID, version)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, bet)
	return bet, nil
}

// load fetches a round and checks it belongs to userID and game.
func (s *Service) load(ctx context.Context, userID, game, betID string) (*round.Round, error) {
	r, err := s.rounds.Get(ctx, betID)
	if errors.Is(err, round.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, betID)
	}
	if err != nil {
		return nil, err
	}
	if r.UserID != userID || r.Game != game {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, betID)
	}
	return r, nil
}

// finished answers for a round that is no longer open: the settled bet, if
// it belongs to userID.
func (s *Service) finished(ctx context.Context, userID, game, betID string) (*Play, error) {
	bet, err := s.ledger.Bet(ctx, betID)
	if errors.Is(err, ledger.ErrBetNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, betID)
	}
	if err != nil {
		return nil, err
	}
	if bet.UserID != userID || bet.Game != game || bet.Status == ledger.BetOpen {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, betID)
	}
	p := &Play{Bet: bet}
	if len(bet.Outcome) > 0 {
		p.Round = json.RawMessage(bet.Outcome)
	}
	return s.withBalance(ctx, p)
}

func (s *Service) lockUser(ctx context.Context, userID string) (func(), error) {
	return s.locks.Lock(ctx, "user:"+userID)
}

func (s *Service) publish(ctx context.Context, bet *ledger.Bet) {
	name := bet.UserID
	if u, err := s.ledger.User(ctx, bet.UserID); err == nil {
		name = u.Username
	} else {
		s.log.Warn("feed: user lookup failed", zap.String("user_id", bet.UserID), zap.Error(err))
	}
	mult := decimal.Zero
	if bet.Stake > 0 {
		mult = bet.Payout.Decimal().DivRound(bet.Stake.Decimal(), 4)
	}
	settledAt := s.now().UnixMilli()
	if bet.SettledAt.Valid {
		settledAt = bet.SettledAt.Int64
	}
	s.feed.Publish(feed.Event{
		BetID:      bet.ID,
		Username:   name,
		Game:       bet.Game,
		Stake:      bet.Stake,
		Payout:     bet.Payout,
		Multiplier: mult.StringFixed(2),
		SettledAt:  settledAt,
	})
}
