package utils

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func TestMulDivFloor(t *testing.T) {
	got, err := MulDivFloor(sdkmath.NewInt(200), sdkmath.NewInt(500), sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())

	got, err = MulDivFloor(sdkmath.NewInt(7), sdkmath.NewInt(1), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "2", got.String())

	_, err = MulDivFloor(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivFloorWideIntermediate(t *testing.T) {
	max := sdkmath.NewIntFromBigInt(maxUint256())
	got, err := MulDivFloor(max, max, max)
	require.NoError(t, err)
	assert.True(t, got.Equal(max))
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(sdkmath.NewInt(2), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())

	_, err = CheckedAdd(sdkmath.NewIntFromBigInt(maxUint256()), sdkmath.OneInt())
	require.ErrorIs(t, err, ErrOverflow)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1000 ")
	require.NoError(t, err)
	assert.Equal(t, "1000", v.String())

	_, err = ParseAmount("1.5")
	require.ErrorIs(t, err, ErrConversionFailed)

	_, err = ParseAmount("-1")
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = ParseAmount("")
	require.ErrorIs(t, err, ErrConversionFailed)
}

func TestBigToIntRejectsOversized(t *testing.T) {
	_, err := BigToInt(new(big.Int).Lsh(big.NewInt(1), 256))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = BigToInt(nil)
	require.ErrorIs(t, err, ErrAmountNil)
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1", FormatEther(sdkmath.NewInt(1_000_000_000_000_000_000)))
	assert.Equal(t, "0.5", FormatEther(sdkmath.NewInt(500_000_000_000_000_000)))
	assert.Equal(t, "0.000000000000000001", FormatEther(sdkmath.OneInt()))
	assert.Equal(t, "0", FormatEther(sdkmath.ZeroInt()))
}

func TestFormatUnitsPrecisionBounds(t *testing.T) {
	_, err := FormatUnits(sdkmath.OneInt(), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)

	out, err := FormatUnits(sdkmath.NewInt(12345), 0)
	require.NoError(t, err)
	assert.Equal(t, "12345", out)
}

func TestToFloat64(t *testing.T) {
	assert.Equal(t, 0.0, ToFloat64(sdkmath.Int{}))
	assert.Equal(t, 1500.0, ToFloat64(sdkmath.NewInt(1500)))
}
