// Package fixmath provides the integer arithmetic used on the control path.
//
// Real-valued constants are stored as prescaled integers so that every
// product fits in 64 bits and no floating point is needed at run time.
package fixmath

import (
	"math"
	"math/bits"
)

// Coef is a real constant stored as Mul / 2^Shift.
type Coef struct {
	Mul   int32
	Shift uint8
}

// maxShift bounds the prescale so Mul*v stays within int64 for |v| < 2^32.
const maxShift = 62

// Apply returns c*v rounded to the nearest integer.
func (c Coef) Apply(v int64) int64 {
	p := int64(c.Mul) * v
	if c.Shift == 0 {
		return p
	}
	return (p + 1<<(c.Shift-1)) >> c.Shift
}

// Apply32 is Apply with the result saturated to int32.
func (c Coef) Apply32(v int32) int32 {
	return Sat32(c.Apply(int64(v)))
}

// Float returns the real value represented by c.
func (c Coef) Float() float64 {
	return float64(c.Mul) / math.Ldexp(1, int(c.Shift))
}

// IsZero reports whether c represents zero.
func (c Coef) IsZero() bool {
	return c.Mul == 0
}

// Quantize converts x into the Coef with the largest shift that keeps
// |Mul| below 2^30.
func Quantize(x float64) Coef {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return Coef{}
	}
	a := math.Abs(x)
	if a >= 1<<30 {
		return Coef{Mul: Sat32(int64(math.Round(x)))}
	}
	shift := 0
	for shift < maxShift && a*math.Ldexp(1, shift+1) < 1<<30 {
		shift++
	}
	return Coef{Mul: int32(math.Round(math.Ldexp(x, shift))), Shift: uint8(shift)}
}

// Sat32 saturates v to the int32 range.
func Sat32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Clamp limits v to [-lim, lim]. lim must be non-negative.
func Clamp(v, lim int32) int32 {
	if v > lim {
		return lim
	}
	if v < -lim {
		return -lim
	}
	return v
}

// Clamp64 limits v to [-lim, lim]. lim must be non-negative.
func Clamp64(v, lim int64) int64 {
	if v > lim {
		return lim
	}
	if v < -lim {
		return -lim
	}
	return v
}

// Abs returns |v|, saturating at MaxInt32.
func Abs(v int32) int32 {
	if v < 0 {
		if v == math.MinInt32 {
			return math.MaxInt32
		}
		return -v
	}
	return v
}

// Abs64 returns |v|.
func Abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0 or 1.
func Sign(v int64) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Sqrt returns floor(sqrt(n)) for n >= 0 and 0 otherwise.
func Sqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	// Newton iteration from an upper bound converges monotonically.
	x := n
	y := x/2 + x%2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// MulDiv returns a*b/c truncated toward zero, computed with a 128-bit
// intermediate product. The result saturates at the int64 range. c must not
// be zero.
func MulDiv(a, b, c int64) int64 {
	neg := (a < 0) != (b < 0) != (c < 0)
	hi, lo := bits.Mul64(absU(a), absU(b))
	uc := absU(c)
	if hi >= uc {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uc)
	if neg {
		if q > 1<<63 {
			return math.MinInt64
		}
		return -int64(q)
	}
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func absU(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// TimeDiff returns a-b for wrapping millisecond timestamps.
func TimeDiff(a, b uint32) int32 {
	return int32(a - b)
}

// TimeAfterOrEqual reports whether a is at or after b on a wrapping clock.
func TimeAfterOrEqual(a, b uint32) bool {
	return TimeDiff(a, b) >= 0
}
