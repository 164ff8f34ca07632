package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		name       string
		in         string
		minorUnits int32
		want       string
	}{
		{"exact", "2000", 2, "2000"},
		{"below half", "19.994", 2, "19.99"},
		{"at half rounds up", "19.995", 2, "20"},
		{"above half", "19.996", 2, "20"},
		{"half at whole units", "1999.5", 0, "2000"},
		{"minor unit half up", "1999.995", 2, "2000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tc.in), tc.minorUnits)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"Round(%s, %d) = %s, want %s", tc.in, tc.minorUnits, got, tc.want)
		})
	}
}

func TestLineTotalNoPerLineRounding(t *testing.T) {
	// 3 * 666.665 = 1999.995 must survive unrounded for cart-level rounding.
	got := LineTotal(decimal.RequireFromString("666.665"), 3)
	require.True(t, got.Equal(decimal.RequireFromString("1999.995")))
}

func TestParse(t *testing.T) {
	d, err := Parse("129.99")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("129.99")))

	_, err = Parse("not-a-number")
	require.Error(t, err)
}

func TestMustParsePanics(t *testing.T) {
	require.Panics(t, func() { MustParse("abc") })
}
