package servo

import (
	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/fixmath"
)

// Direction selects which way of rotation counts as positive, looking at
// the motor shaft.
type Direction int8

const (
	Clockwise        Direction = 1
	Counterclockwise Direction = -1
)

// ParseDirection accepts "clockwise" and "counterclockwise".
func ParseDirection(name string) (Direction, error) {
	switch name {
	case "", "clockwise":
		return Clockwise, nil
	case "counterclockwise":
		return Counterclockwise, nil
	}
	return 0, errors.Wrapf(core.ErrInvalidArgument, "direction %q", name)
}

func (d Direction) String() string {
	if d == Counterclockwise {
		return "counterclockwise"
	}
	return "clockwise"
}

// maxTeeth bounds gear sizes so ratios of several trains stay exact.
const maxTeeth = 1000

// geometry converts between encoder counts, the motor frame and user units
// at the output shaft.
type geometry struct {
	num, den int64 // motor degrees per output degree is num/den
	sign     int64
	cpr      int64
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// newGeometry builds the conversions. Each gear train lists teeth from the
// motor side; its ratio is last over first.
func newGeometry(dir Direction, trains [][]int32, cpr int32) (geometry, error) {
	g := geometry{num: 1, den: 1, sign: 1, cpr: 360}
	switch dir {
	case Clockwise, 0:
	case Counterclockwise:
		g.sign = -1
	default:
		return geometry{}, errors.Wrapf(core.ErrInvalidArgument, "direction %d", dir)
	}
	if cpr < 0 {
		return geometry{}, errors.Wrapf(core.ErrInvalidArgument, "counts per rotation %d", cpr)
	}
	if cpr > 0 {
		g.cpr = int64(cpr)
	}
	if len(trains) > 4 {
		return geometry{}, errors.Wrapf(core.ErrInvalidArgument, "%d gear trains", len(trains))
	}
	for _, train := range trains {
		if len(train) < 2 {
			return geometry{}, errors.Wrapf(core.ErrInvalidArgument, "gear train %v", train)
		}
		for _, teeth := range train {
			if teeth <= 0 || teeth > maxTeeth {
				return geometry{}, errors.Wrapf(core.ErrInvalidArgument, "gear with %d teeth", teeth)
			}
		}
		g.num *= int64(train[len(train)-1])
		g.den *= int64(train[0])
		r := gcd(g.num, g.den)
		g.num /= r
		g.den /= r
	}
	return g, nil
}

func (g geometry) toMotor(v int64) int64 {
	return fixmath.MulDiv(v, g.num, g.den)
}

func (g geometry) toUser(v int64) int64 {
	return fixmath.MulDiv(v, g.den, g.num)
}

func (g geometry) toMotor32(v int32) int32 {
	return fixmath.Sat32(g.toMotor(int64(v)))
}

func (g geometry) toUser32(v int32) int32 {
	return fixmath.Sat32(g.toUser(int64(v)))
}

// countsToAngle converts accumulated encoder counts to a motor frame angle.
func (g geometry) countsToAngle(counts int64) int64 {
	return g.sign * fixmath.MulDiv(counts, 360000, g.cpr)
}
