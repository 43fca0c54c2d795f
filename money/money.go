// Package money holds balances and stakes as integer minor units so that every
// balance mutation is exact in both SQL backends.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by an Amount.
const Scale = 2

var ErrInvalid = errors.New("invalid amount")

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Amount is a signed count of minor units (1 = 0.01).
type Amount int64

// FromDecimal converts d to minor units. More than Scale fractional digits is an error.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalid, Scale)
	}
	minor := d.Shift(Scale)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalid)
	}
	return Amount(minor.IntPart()), nil
}

// Parse reads a decimal string such as "12.34".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// MulRatio multiplies by a payout multiplier and truncates toward zero.
func (a Amount) MulRatio(m decimal.Decimal) Amount {
	return Amount(decimal.NewFromInt(int64(a)).Mul(m).Truncate(0).IntPart())
}

func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalYAML writes the decimal form so config files stay human readable.
func (a Amount) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

func (a *Amount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
