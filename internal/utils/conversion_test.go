package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivRoundsDown(t *testing.T) {
	got, err := MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(2), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "6", got.String())

	up, err := MulDivUp(sdkmath.NewInt(10), sdkmath.NewInt(2), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "7", up.String())

	_, err = MulDiv(sdkmath.OneInt(), sdkmath.OneInt(), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivisionByZero)
	_, err = MulDiv(sdkmath.Int{}, sdkmath.OneInt(), sdkmath.OneInt())
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestUnitsToRaw(t *testing.T) {
	cases := []struct {
		units     string
		precision int
		want      string
	}{
		{"1000", 6, "1000000000"},
		{"1000.5", 6, "1000500000"},
		{".25", 2, "25"},
		{"1.123456789", 6, "1123456"},
		{"7", 0, "7"},
	}
	for _, tc := range cases {
		t.Run(tc.units, func(t *testing.T) {
			got, err := UnitsToRaw(tc.units, tc.precision)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}

	_, err := UnitsToRaw("-1", 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
	_, err = UnitsToRaw("", 6)
	assert.ErrorIs(t, err, ErrConversionFailed)
	_, err = UnitsToRaw("1", MaxPrecision+1)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
	assert.Panics(t, func() { MustUnitsToRaw("abc", 6) })
}

func TestRawToFloat64(t *testing.T) {
	f, err := RawToFloat64(sdkmath.NewInt(2_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, f, 1e-12)

	_, err = RawToFloat64(sdkmath.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
	_, err = RawToFloat64(sdkmath.OneInt(), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestBasisPointsOf(t *testing.T) {
	assert.Equal(t, "10", BasisPointsOf(sdkmath.NewInt(10_000), 10).String())
	assert.True(t, BasisPointsOf(sdkmath.Int{}, 10).IsZero())
}
