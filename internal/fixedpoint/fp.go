// Package fixedpoint implements the scaled-integer arithmetic the dry-run
// engine uses for prices, quantities, cash, and PnL. Every Fp is a real
// number times Scale; conversion to/from float64 is explicit so the
// matching engine never carries floating-point rounding across a fill.
//
// Grounded on the teacher's itch.Price4/Price4ToFloat pair (a fixed
// decimal-scale conversion at the wire boundary) generalized from a
// 1e4-scaled uint32 to a 1e8-scaled int64, as spec.md §4.1 requires.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
)

// Fp is a signed fixed-point scalar: the represented value times Scale.
type Fp int64

// Scale is the fixed-point denominator: 10^8.
const Scale int64 = 100_000_000

// ErrDivideByZero is returned by Div when the divisor is zero. Spec.md
// §4.1 classifies this as a fatal arithmetic error.
var ErrDivideByZero = errors.New("fixedpoint: division by zero")

// ConversionError wraps a non-finite input rejected by ToFp.
type ConversionError struct {
	Value float64
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("fixedpoint: cannot convert non-finite value %v to Fp", e.Value)
}

// ToFp converts a real number to its fixed-point representation.
// Returns a ConversionError for NaN or +/-Inf input; the caller is
// responsible for recovering (spec.md §4.1: "caller's responsibility").
func ToFp(real float64) (Fp, error) {
	if math.IsNaN(real) || math.IsInf(real, 0) {
		return 0, &ConversionError{Value: real}
	}
	return Fp(math.Round(real * float64(Scale))), nil
}

// MustToFp panics on conversion failure; used only at call sites that
// have already validated finiteness (e.g. literal test fixtures).
func MustToFp(real float64) Fp {
	v, err := ToFp(real)
	if err != nil {
		panic(err)
	}
	return v
}

// FromFp converts a fixed-point scalar back to a real number.
func FromFp(v Fp) float64 {
	return float64(v) / float64(Scale)
}

// Add returns a + b.
func Add(a, b Fp) Fp { return a + b }

// Sub returns a - b.
func Sub(a, b Fp) Fp { return a - b }

// Mul returns a * b scaled back down to Fp precision: (a*b)/Scale.
// Computed in float64 intermediate space to avoid int64 overflow on the
// a*b product for realistic price*qty magnitudes; callers needing exact
// integer semantics for very large notional should pre-scale inputs.
func Mul(a, b Fp) Fp {
	return Fp(math.Round(float64(a) * float64(b) / float64(Scale)))
}

// Div returns (a*Scale)/b. Returns ErrDivideByZero when b == 0, per the
// fatal-arithmetic-error contract in spec.md §4.1/§7.
func Div(a, b Fp) (Fp, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return Fp(math.Round(float64(a) * float64(Scale) / float64(b))), nil
}

// Min returns the smaller of a, b.
func Min(a, b Fp) Fp {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a, b.
func Max(a, b Fp) Fp {
	if a > b {
		return a
	}
	return b
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Cmp(a, b Fp) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sign returns -1, 0, or 1 for the sign of v.
func Sign(v Fp) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// Abs returns the absolute value of v.
func Abs(v Fp) Fp {
	if v < 0 {
		return -v
	}
	return v
}

// RoundTo rounds v to the nearest multiple of step (step > 0), the way a
// price is snapped to a tick size.
func RoundTo(v, step Fp) Fp {
	if step <= 0 {
		return v
	}
	half := step / 2
	if v >= 0 {
		return ((v + half) / step) * step
	}
	return -(((-v + half) / step) * step)
}
