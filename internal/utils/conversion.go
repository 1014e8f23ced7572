/*
This file contains common utility functions for fixed-point arithmetic over raw token amounts,
particularly for SDK math operations and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrDivisionByZero   = errors.New("division by zero")
)

// MaxPrecision is the largest token precision (decimals) accepted by the conversion helpers.
const MaxPrecision = 36

// Pow10 returns 10^precision as an SDK Int.
func Pow10(precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > MaxPrecision {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, MaxPrecision)
	}
	factor := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(ten)
	}
	return factor, nil
}

// MulDiv returns floor(a * b / c).
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || c.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	return a.Mul(b).Quo(c), nil
}

// MulDivUp returns ceil(a * b / c) for non-negative operands.
func MulDivUp(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || c.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	product := a.Mul(b)
	q := product.Quo(c)
	if !product.Mod(c).IsZero() {
		q = q.AddRaw(1)
	}
	return q, nil
}

// BasisPointsOf returns floor(amount * bps / 10000).
func BasisPointsOf(amount sdkmath.Int, bps uint16) sdkmath.Int {
	if amount.IsNil() || bps == 0 {
		return sdkmath.ZeroInt()
	}
	return amount.MulRaw(int64(bps)).QuoRaw(10000)
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b sdkmath.Int) sdkmath.Int {
	if a.GT(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}

// NilToZero returns the zero Int for nil Ints so that zero-value structs can be used safely.
func NilToZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}

// RawToFloat64 converts a raw token amount to float64 whole units. Intended for logging and display only.
func RawToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor, err := Pow10(precision)
	if err != nil {
		return 0, err
	}

	result := decAmount.Quo(sdkmath.LegacyNewDecFromInt(factor))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// UnitsToRaw converts a decimal string of whole units (e.g. "1000.5") to a raw amount with the given precision.
// Digits beyond the precision are truncated.
func UnitsToRaw(units string, precision int) (sdkmath.Int, error) {
	factor, err := Pow10(precision)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	units = strings.TrimSpace(units)
	if units == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty amount", ErrConversionFailed)
	}
	if strings.HasPrefix(units, "-") {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	whole, frac, _ := strings.Cut(units, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > precision {
		frac = frac[:precision]
	}
	frac += strings.Repeat("0", precision-len(frac))

	w, ok := sdkmath.NewIntFromString(whole)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: invalid whole part %q", ErrConversionFailed, whole)
	}
	result := w.Mul(factor)
	if frac != "" {
		f, ok := sdkmath.NewIntFromString(frac)
		if !ok {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: invalid fractional part %q", ErrConversionFailed, frac)
		}
		result = result.Add(f)
	}
	return result, nil
}

// MustUnitsToRaw is UnitsToRaw for constant inputs; it panics on malformed input.
func MustUnitsToRaw(units string, precision int) sdkmath.Int {
	v, err := UnitsToRaw(units, precision)
	if err != nil {
		panic(err)
	}
	return v
}
