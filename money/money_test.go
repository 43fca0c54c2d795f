package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]Amount{
		"0":      0,
		"12.34":  1234,
		"12.3":   1230,
		"-5":     -500,
		" 7.00 ": 700,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"1.234", "abc", "", "1e30"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalid, in)
	}
}

func TestJSON(t *testing.T) {
	var body struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 10.5, "b": "3.25"}`), &body))
	assert.Equal(t, Amount(1050), body.A)
	assert.Equal(t, Amount(325), body.B)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"10.50","b":"3.25"}`, string(out))
}

func TestMulRatio_TruncatesTowardZero(t *testing.T) {
	assert.Equal(t, Amount(1500), Amount(1000).MulRatio(decimal.RequireFromString("1.5")))
	assert.Equal(t, Amount(166), Amount(333).MulRatio(decimal.RequireFromString("0.5")))
	assert.Equal(t, Amount(3600), Amount(100).MulRatio(decimal.NewFromInt(36)))
	assert.Equal(t, Amount(0), Amount(0).MulRatio(decimal.NewFromInt(14)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-1.20", Amount(-120).String())
}
