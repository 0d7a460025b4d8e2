/*
This file contains common utility functions for converting between different types,
particularly for 256-bit currency amounts held in SDK math Ints.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// MaxUint256Bits is the width of every amount on the vault's boundary.
const MaxUint256Bits = 256

// WeiPerEther is the display precision of the native currency.
const WeiPerEther = 18

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrOverflow         = errors.New("amount exceeds 256 bits")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrConversionFailed = errors.New("conversion failed")
)

// ValidateAmount checks that an amount is set, non-negative and fits in a uint256.
func ValidateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	if amount.BigInt().BitLen() > MaxUint256Bits {
		return ErrOverflow
	}
	return nil
}

// CheckedAdd returns a+b, or ErrOverflow if the sum leaves the uint256 range.
func CheckedAdd(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sum.BitLen() > MaxUint256Bits {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sdkmath.NewIntFromBigInt(sum), nil
}

// MulDivFloor computes floor(a*b/c) on unbounded intermediates so that the
// product never overflows even when both factors are close to 2^256.
func MulDivFloor(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	if a.IsNegative() || b.IsNegative() || c.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	product.Quo(product, c.BigInt())
	if product.BitLen() > MaxUint256Bits {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(product), nil
}

// BigToInt converts a decoded uint256 into an SDK Int.
func BigToInt(v *big.Int) (sdkmath.Int, error) {
	if v == nil {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if v.Sign() < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if v.BitLen() > MaxUint256Bits {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

// ParseAmount parses a base-10 integer amount in wei.
func ParseAmount(s string) (sdkmath.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty amount", ErrConversionFailed)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q is not a base-10 integer", ErrConversionFailed, s)
	}
	return BigToInt(v)
}

// FormatUnits renders an amount with the given number of decimals, trimming trailing zeros.
func FormatUnits(amount sdkmath.Int, precision int) (string, error) {
	if precision < 0 || precision > WeiPerEther {
		return "", fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, WeiPerEther)
	}
	if err := ValidateAmount(amount); err != nil {
		return "", err
	}
	if precision == 0 {
		return amount.String(), nil
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	whole, frac := new(big.Int).QuoRem(amount.BigInt(), base, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String(), nil
	}
	fracStr := frac.String()
	fracStr = strings.Repeat("0", precision-len(fracStr)) + fracStr
	return whole.String() + "." + strings.TrimRight(fracStr, "0"), nil
}

// FormatEther renders a wei amount in ether units.
func FormatEther(amount sdkmath.Int) string {
	out, err := FormatUnits(amount, WeiPerEther)
	if err != nil {
		return amount.String() + " wei"
	}
	return out
}

// ToFloat64 approximates an amount as a float, for gauges and counters only.
func ToFloat64(amount sdkmath.Int) float64 {
	if amount.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount.BigInt()).Float64()
	return f
}
