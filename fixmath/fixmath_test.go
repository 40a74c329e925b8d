package fixmath

import (
	"math"
	"testing"
)

func TestQuantizeRoundTrip(t *testing.T) {
	testCases := []float64{
		0.004842157658530657,
		0.9187902920811915,
		8.612773204676529,
		-0.005199283601490461,
		12.389465204002502,
		-0.9207508603393846,
		22.17330683333333,
		21413.268,
	}

	for _, x := range testCases {
		c := Quantize(x)
		if c.Mul == 0 {
			t.Errorf("Quantize(%g) returned zero multiplier", x)
			continue
		}
		if c.Mul >= 1<<30 || c.Mul <= -(1<<30) {
			t.Errorf("Quantize(%g) multiplier %d out of range", x, c.Mul)
		}
		rel := math.Abs(c.Float()-x) / math.Abs(x)
		if rel > 1e-8 {
			t.Errorf("Quantize(%g) = %v (%g), relative error %g", x, c, c.Float(), rel)
		}
	}

	if c := Quantize(0); !c.IsZero() {
		t.Errorf("Quantize(0) = %v, want zero", c)
	}
}

func TestCoefApplyRounds(t *testing.T) {
	half := Coef{Mul: 1, Shift: 1}
	testCases := []struct {
		in   int64
		want int64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 2},
		{-1, 0},
		{-2, -1},
		{-3, -1},
	}
	for _, tc := range testCases {
		if got := half.Apply(tc.in); got != tc.want {
			t.Errorf("0.5 * %d = %d, want %d", tc.in, got, tc.want)
		}
	}

	c := Quantize(0.9187902920811915)
	if got := c.Apply(1000000); got != 918790 {
		t.Errorf("Apply(1000000) = %d, want 918790", got)
	}
	if got := c.Apply32(math.MaxInt32); got <= 0 {
		t.Errorf("Apply32 overflowed: %d", got)
	}
}

func TestSqrt(t *testing.T) {
	testCases := []int64{0, 1, 2, 3, 4, 15, 16, 17, 99, 100, 135000000000, 1 << 40, (1 << 62) - 1}
	for _, n := range testCases {
		r := Sqrt(n)
		if r*r > n || (r+1)*(r+1) <= n {
			t.Errorf("Sqrt(%d) = %d", n, r)
		}
	}
	if Sqrt(-5) != 0 {
		t.Errorf("Sqrt of negative should be 0")
	}
	// Peak speed of the 90 degree reference move.
	if got := Sqrt(2 * 1500000 * 45000); got != 367423 {
		t.Errorf("Sqrt(135e9) = %d, want 367423", got)
	}
}

func TestClampAndSign(t *testing.T) {
	if Clamp(15, 10) != 10 || Clamp(-15, 10) != -10 || Clamp(5, 10) != 5 {
		t.Errorf("Clamp mismatch")
	}
	if Clamp64(1<<40, 1<<20) != 1<<20 {
		t.Errorf("Clamp64 mismatch")
	}
	if Abs(math.MinInt32) != math.MaxInt32 {
		t.Errorf("Abs(MinInt32) should saturate")
	}
	if Sign(-3) != -1 || Sign(0) != 0 || Sign(7) != 1 {
		t.Errorf("Sign mismatch")
	}
	if Sat32(1<<40) != math.MaxInt32 || Sat32(-(1 << 40)) != math.MinInt32 {
		t.Errorf("Sat32 mismatch")
	}
}

func TestTimeDiffWraps(t *testing.T) {
	var before uint32 = math.MaxUint32 - 2
	var after uint32 = 3
	if d := TimeDiff(after, before); d != 6 {
		t.Errorf("TimeDiff across wrap = %d, want 6", d)
	}
	if !TimeAfterOrEqual(after, before) {
		t.Errorf("expected %d to be after %d", after, before)
	}
	if TimeAfterOrEqual(before, after) {
		t.Errorf("expected %d to be before %d", before, after)
	}
}

func TestMulDiv(t *testing.T) {
	cases := []struct {
		a, b, c, want int64
	}{
		{7, 3, 2, 10},
		{-7, 3, 2, -10},
		{7, -3, -2, 10},
		{1 << 40, 1 << 40, 1 << 50, 1 << 30},
		{math.MaxInt64, 2, 2, math.MaxInt64},
		{math.MaxInt64, 4, 2, math.MaxInt64},
		{math.MinInt64 + 1, 4, 2, math.MinInt64},
		{1500000, 90000, 3000000, 45000},
	}
	for _, tc := range cases {
		if got := MulDiv(tc.a, tc.b, tc.c); got != tc.want {
			t.Errorf("MulDiv(%d, %d, %d) = %d, want %d", tc.a, tc.b, tc.c, got, tc.want)
		}
	}
}
