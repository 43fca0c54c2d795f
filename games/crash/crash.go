// Package crash implements the crash game: a multiplier climbs from 1.00 until
// a pre-drawn crash point, and the player must cash out before it.
package crash

import (
	"errors"
	"math"
	"time"

	"github.com/Ashenafi-pixel/casino-settlement/fair"
	"github.com/Ashenafi-pixel/casino-settlement/money"
	"github.com/shopspring/decimal"
)

// StepSize is the multiplier increment per step: 1.00 + step*0.01.
const StepSize = 0.01

// StepInterval is how often the multiplier advances.
const StepInterval = 100 * time.Millisecond

// MaxStep caps the crash point at 10000.00x.
const MaxStep = 999900

const (
	StateRunning   = "running"
	StateCashedOut = "cashed_out"
	StateCrashed   = "crashed"
)

var (
	ErrNotRunning      = errors.New("round is not running")
	ErrStepNotReached  = errors.New("multiplier not reached yet")
	ErrInvalidAutoStep = errors.New("auto cashout must be above 1.00")
)

// Multiplier returns the multiplier at step (e.g. step 50 -> 1.50).
func Multiplier(step int) decimal.Decimal {
	if step < 0 {
		step = 0
	}
	return decimal.New(int64(100+step), -2)
}

// StepFor converts a multiplier to the first step that reaches it.
// Multipliers beyond the cap map to MaxStep+1, which no round reaches.
func StepFor(m decimal.Decimal) int {
	if m.GreaterThan(Multiplier(MaxStep)) {
		return MaxStep + 1
	}
	return int(m.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Ceil().IntPart())
}

// CrashStep draws the crash step from one uniform value u:
// crash point = max(1.00, floor(100*rtp/(1-u))/100), so every cashout target
// m returns rtp on average.
func CrashStep(src fair.Source, rtp float64) int {
	u := src.Float64()
	point := math.Floor(100*rtp/(1-u)) / 100
	if point <= 1 {
		return 0
	}
	step := int(math.Round((point - 1) * 100))
	if step > MaxStep {
		return MaxStep
	}
	return step
}

// Round is the full round state, persisted between requests.
type Round struct {
	Stake       money.Amount `json:"stake"`
	RTP         float64      `json:"rtp"`
	CrashStep   int          `json:"crashStep"`
	AutoStep    int          `json:"autoStep,omitempty"`
	StartedAt   int64        `json:"startedAt"`
	State       string       `json:"state"`
	CashoutStep int          `json:"cashoutStep,omitempty"`
}

// NewRound draws the crash point. autoStep 0 disables auto cashout.
func NewRound(src fair.Source, stake money.Amount, rtp float64, autoStep int, now time.Time) (*Round, error) {
	if autoStep < 0 {
		return nil, ErrInvalidAutoStep
	}
	return &Round{
		Stake:     stake,
		RTP:       rtp,
		CrashStep: CrashStep(src, rtp),
		AutoStep:  autoStep,
		StartedAt: now.UnixMilli(),
		State:     StateRunning,
	}, nil
}

// StepAt is the step the multiplier has reached at now.
func (r *Round) StepAt(now time.Time) int {
	elapsed := now.UnixMilli() - r.StartedAt
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / StepInterval.Milliseconds())
}

func (r *Round) Done() bool { return r.State != StateRunning }

// Resolve settles the round if the auto cashout or the crash has been reached
// by now. It reports whether the round is finished.
func (r *Round) Resolve(now time.Time) bool {
	if r.Done() {
		return true
	}
	step := r.StepAt(now)
	switch {
	case r.AutoStep > 0 && r.AutoStep < r.CrashStep && step >= r.AutoStep:
		r.State = StateCashedOut
		r.CashoutStep = r.AutoStep
	case step >= r.CrashStep:
		r.State = StateCrashed
	}
	return r.Done()
}

// Cashout cashes out at step, or at the current step when step < 0. A step
// the multiplier has not reached yet is rejected; a step at or past the
// crash point loses.
func (r *Round) Cashout(step int, now time.Time) error {
	if r.Resolve(now) {
		return ErrNotRunning
	}
	current := r.StepAt(now)
	if step < 0 {
		step = current
	}
	if step > current {
		return ErrStepNotReached
	}
	if step >= r.CrashStep {
		r.State = StateCrashed
		return nil
	}
	r.State = StateCashedOut
	r.CashoutStep = step
	return nil
}

// Expire ends a running round as a loss.
func (r *Round) Expire() {
	if !r.Done() {
		r.State = StateCrashed
	}
}

func (r *Round) Payout() money.Amount {
	if r.State != StateCashedOut {
		return 0
	}
	return r.Stake.MulRatio(Multiplier(r.CashoutStep))
}

// View hides the crash point while the round runs.
type View struct {
	State       string       `json:"state"`
	Stake       money.Amount `json:"stake"`
	Step        int          `json:"step"`
	Multiplier  string       `json:"multiplier"`
	AutoCashout string       `json:"autoCashout,omitempty"`
	CrashPoint  string       `json:"crashPoint,omitempty"`
	CashoutAt   string       `json:"cashoutAt,omitempty"`
	Payout      money.Amount `json:"payout"`
	StartedAt   int64        `json:"startedAt"`
}

func (r *Round) View(now time.Time) View {
	step := r.StepAt(now)
	if r.Done() {
		step = r.CrashStep
		if r.State == StateCashedOut {
			step = r.CashoutStep
		}
	}
	v := View{
		State:      r.State,
		Stake:      r.Stake,
		Step:       step,
		Multiplier: Multiplier(step).StringFixed(2),
		Payout:     r.Payout(),
		StartedAt:  r.StartedAt,
	}
	if r.AutoStep > 0 {
		v.AutoCashout = Multiplier(r.AutoStep).StringFixed(2)
	}
	if r.Done() {
		v.CrashPoint = Multiplier(r.CrashStep).StringFixed(2)
	}
	if r.State == StateCashedOut {
		v.CashoutAt = Multiplier(r.CashoutStep).StringFixed(2)
	}
	return v
}
