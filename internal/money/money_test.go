package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"300.00", 30000},
		{"0.01", 1},
		{"0.00", 0},
		{"19.99", 1999},
		{"1250.50", 125050},
	}

	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.amount)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ToMinorUnits(d), "amount %s", tc.amount)
	}
}

func TestToMinorUnitsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"0.005", 1},
		{"0.004", 0},
		{"1.995", 200},
		{"1.994", 199},
	}

	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.amount)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ToMinorUnits(d), "amount %s", tc.amount)
	}
}

func TestRoundTripLosslessForCentValues(t *testing.T) {
	// Every integral-cent amount must survive a full round trip unchanged.
	for _, s := range []string{"0.00", "0.01", "0.99", "1.00", "300.00", "999999.99"} {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)

		back := FromMinorUnits(ToMinorUnits(d))
		assert.True(t, d.Equal(back), "round trip changed %s to %s", d, back)
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, "300", FromMinorUnits(30000).String())
	assert.Equal(t, "300.00", FromMinorUnits(30000).StringFixed(2))
	assert.Equal(t, "0.01", FromMinorUnits(1).StringFixed(2))
}

func TestNormalize(t *testing.T) {
	d, err := decimal.NewFromString("10.005")
	require.NoError(t, err)
	assert.Equal(t, "10.01", Normalize(d).StringFixed(2))
}
