// Package trajectory plans trapezoidal and triangular speed profiles and
// evaluates them at arbitrary times.
//
// A Trajectory has up to three phases: a constant acceleration phase from the
// start speed to the peak speed, a cruise phase and a constant deceleration
// phase to standstill. Planning happens in the direction of motion; reversed
// trajectories are mirrored on evaluation. All arithmetic is integer, in
// millidegrees and milliseconds.
package trajectory

import (
	"math"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/fixmath"
)

const (
	// MaxDuration bounds the length of a finite trajectory in ms.
	MaxDuration = 1 << 30

	// MaxDistance bounds the travel of an angle based trajectory in mdeg.
	MaxDistance = 1 << 40

	// MinAcceleration keeps the quadratic terms of Evaluate within int64.
	MinAcceleration = 1000

	MaxSpeed        = 43633231
	MaxAcceleration = 436332312

	forever = math.MaxInt32
)

// Start is the state a new trajectory continues from.
type Start struct {
	Time  uint32 // ms
	Angle int64  // mdeg
	Speed int32  // mdeg/s
}

// Limits are the speed and acceleration bounds of a plan.
type Limits struct {
	Acceleration int32 // mdeg/s^2
	Deceleration int32
}

// Reference is the reference state at one instant.
type Reference struct {
	Angle        int64
	Speed        int32
	Acceleration int32
}

// Trajectory is an immutable reference motion. Angles X1..X3 are relative to
// StartAngle in the direction of motion, times T1..T3 relative to Start.
type Trajectory struct {
	Start      uint32
	StartAngle int64

	T1, T2, T3 int32 // end of acceleration, cruise, deceleration
	X1, X2, X3 int64
	W0, W1     int32 // start and peak speed
	A0, A2     int32 // acceleration of first and last phase

	Reverse bool
	Forever bool
}

// None returns a trajectory that stays at angle and is complete immediately.
func None(now uint32, angle int64) Trajectory {
	return Trajectory{Start: now, StartAngle: angle}
}

func checkLimits(lim Limits) error {
	if lim.Acceleration < MinAcceleration || lim.Acceleration > MaxAcceleration {
		return errors.Wrapf(core.ErrInvalidArgument, "acceleration %d", lim.Acceleration)
	}
	if lim.Deceleration < MinAcceleration || lim.Deceleration > MaxAcceleration {
		return errors.Wrapf(core.ErrInvalidArgument, "deceleration %d", lim.Deceleration)
	}
	return nil
}

func clampSpeed(w int32) int64 {
	return int64(fixmath.Clamp(w, MaxSpeed))
}

// PlanAngle plans a move from s to target, cruising at |speed|. The sign of
// speed is ignored: the direction follows from the target.
//
// If the start speed is too high to stop at the target with the configured
// deceleration, the deceleration is raised so the reference still stops
// exactly on target.
func PlanAngle(s Start, target int64, speed int32, lim Limits) (Trajectory, error) {
	if err := checkLimits(lim); err != nil {
		return Trajectory{}, err
	}
	if speed == 0 {
		return Trajectory{}, errors.Wrap(core.ErrInvalidArgument, "zero speed for angle based move")
	}
	x3 := target - s.Angle
	if x3 == 0 {
		return None(s.Time, s.Angle), nil
	}
	if x3 > MaxDistance || x3 < -MaxDistance {
		return Trajectory{}, errors.Wrapf(core.ErrInvalidArgument, "distance %d exceeds %d", x3, int64(MaxDistance))
	}

	tr := Trajectory{Start: s.Time, StartAngle: s.Angle}
	w0 := clampSpeed(s.Speed)
	wt := clampSpeed(speed)
	if wt < 0 {
		wt = -wt
	}
	if x3 < 0 {
		tr.Reverse = true
		x3 = -x3
		w0 = -w0
	}
	a := int64(lim.Acceleration)
	d := int64(lim.Deceleration)
	tr.W0 = int32(w0)
	tr.X3 = x3

	// Moving toward the target too fast to stop in time.
	if w0 > 0 {
		q, r := w0*w0/(2*d), w0*w0%(2*d)
		if q > x3 || (q == x3 && r > 0) {
			dd := w0 * w0 / (2 * x3)
			tr.W1 = int32(w0)
			tr.A2 = int32(-fixmath.Clamp64(dd, math.MaxInt32))
			tr.T3 = int32(w0 * 1000 / dd)
			return tr, nil
		}
	}

	var a0, w1, x1, x2 int64
	if w0 <= wt {
		a0 = a
		x1 = (wt*wt - w0*w0) / (2 * a)
		x2 = x3 - wt*wt/(2*d)
		w1 = wt
		if x1 > x2 {
			// No room to cruise: peak where the acceleration and the
			// deceleration parabolas meet.
			xf := -(w0 * w0) / (2 * a)
			x1 = fixmath.MulDiv(d, x3, a+d) + fixmath.MulDiv(a, xf, a+d)
			x2 = x1
			w1 = fixmath.Sqrt(2 * a * (x1 - xf))
		}
	} else {
		a0 = -d
		x1 = (w0*w0 - wt*wt) / (2 * d)
		x2 = x3 - wt*wt/(2*d)
		w1 = wt
	}

	t1, acc := firstPhase(w0, w1, a0)
	if acc != a0 {
		a0 = acc
		x1 = (w0 + w1) / 2000
		x2 = max(x2, x1)
	}
	t2 := t1
	if w1 != 0 {
		t2 += (x2 - x1) * 1000 / w1
	}
	t3 := t2 + w1*1000/d
	if t3 > MaxDuration {
		return Trajectory{}, errors.Wrapf(core.ErrInvalidArgument, "move takes %d ms", t3)
	}

	tr.T1, tr.T2, tr.T3 = int32(t1), int32(t2), int32(t3)
	tr.X1, tr.X2 = x1, x2
	tr.W1 = int32(w1)
	tr.A0 = int32(a0)
	tr.A2 = int32(-d)
	return tr, nil
}

// PlanTime plans a move at speed that comes to a standstill duration ms after
// the start. If there is not enough time to reach speed, the profile is
// triangular. If the motor cannot stop in time, the deceleration phase
// extends beyond duration.
func PlanTime(s Start, speed int32, duration uint32, lim Limits) (Trajectory, error) {
	if err := checkLimits(lim); err != nil {
		return Trajectory{}, err
	}
	if duration > MaxDuration {
		return Trajectory{}, errors.Wrapf(core.ErrInvalidArgument, "duration %d ms", duration)
	}
	if duration == 0 && s.Speed == 0 {
		return None(s.Time, s.Angle), nil
	}
	tr, a0 := timeBased(s, speed, lim)
	a := int64(lim.Acceleration)
	d := int64(lim.Deceleration)
	w0 := int64(tr.W0)
	dur := int64(duration)

	w1 := int64(tr.W1)
	tacc := (w1 - w0) * 1000 / a0
	tdec := w1 * 1000 / d
	if tacc+tdec > dur {
		if a0 > 0 {
			w1 = fixmath.MulDiv(dur*a/1000+w0, d, a+d)
			if floor := max(w0, 0); w1 < floor {
				w1 = floor
			}
		} else {
			w1 = w0
		}
		tacc = (w1 - w0) * 1000 / a0
		tdec = w1 * 1000 / d
	}
	tacc, a0 = firstPhase(w0, w1, a0)

	t3 := tacc + tdec
	if dur > t3 {
		t3 = dur
	}
	t2 := t3 - tdec
	x1 := (w1*w1 - w0*w0) / (2 * a0)
	x2 := x1 + w1*(t2-tacc)/1000

	tr.W1 = int32(w1)
	tr.A0 = int32(a0)
	tr.A2 = int32(-d)
	tr.T1, tr.T2, tr.T3 = int32(tacc), int32(t2), int32(t3)
	tr.X1, tr.X2, tr.X3 = x1, x2, x2+w1*w1/(2*d)
	return tr, nil
}

// PlanForever plans an acceleration to speed followed by an endless cruise.
func PlanForever(s Start, speed int32, lim Limits) (Trajectory, error) {
	if err := checkLimits(lim); err != nil {
		return Trajectory{}, err
	}
	tr, a0 := timeBased(s, speed, lim)
	w0, w1 := int64(tr.W0), int64(tr.W1)
	tr.Forever = true
	t1, a0 := firstPhase(w0, w1, a0)
	tr.A0 = int32(a0)
	tr.T1 = int32(t1)
	tr.T2, tr.T3 = forever, forever
	tr.X1 = (w1*w1 - w0*w0) / (2 * a0)
	return tr, nil
}

// firstPhase returns the duration in ms and the acceleration of the speed
// change from w0 to w1 at a0. A change too small to last a whole millisecond
// is spread over one, so the reference still starts at w0.
func firstPhase(w0, w1, a0 int64) (int64, int64) {
	t1 := (w1 - w0) * 1000 / a0
	if t1 == 0 && w1 != w0 {
		return 1, (w1 - w0) * 1000
	}
	return t1, a0
}

// timeBased sets up the direction and speeds shared by time based plans and
// returns the first phase acceleration.
func timeBased(s Start, speed int32, lim Limits) (Trajectory, int64) {
	tr := Trajectory{Start: s.Time, StartAngle: s.Angle}
	w0 := clampSpeed(s.Speed)
	wt := clampSpeed(speed)
	if wt < 0 {
		tr.Reverse = true
		wt = -wt
		w0 = -w0
	}
	tr.W0, tr.W1 = int32(w0), int32(wt)
	if w0 <= wt {
		return tr, int64(lim.Acceleration)
	}
	return tr, -int64(lim.Deceleration)
}

// Elapsed returns the time since the start, zero before it.
func (tr *Trajectory) Elapsed(now uint32) int32 {
	e := fixmath.TimeDiff(now, tr.Start)
	if e < 0 {
		return 0
	}
	return e
}

// Done reports whether a finite trajectory has reached its end at now.
func (tr *Trajectory) Done(now uint32) bool {
	return !tr.Forever && tr.Elapsed(now) >= tr.T3
}

// Duration returns the total length in ms, or -1 for endless trajectories.
func (tr *Trajectory) Duration() int32 {
	if tr.Forever {
		return -1
	}
	return tr.T3
}

// EndAngle returns the final reference angle of a finite trajectory.
func (tr *Trajectory) EndAngle() int64 {
	if tr.Reverse {
		return tr.StartAngle - tr.X3
	}
	return tr.StartAngle + tr.X3
}

// Evaluate returns the reference at now. It has no side effects.
func (tr *Trajectory) Evaluate(now uint32) Reference {
	e := int64(tr.Elapsed(now))
	t1, t2, t3 := int64(tr.T1), int64(tr.T2), int64(tr.T3)
	w0, w1 := int64(tr.W0), int64(tr.W1)

	var x, w, acc int64
	switch {
	case tr.Forever && e >= t1:
		x = tr.X1 + w1*(e-t1)/1000
		w = w1
	case e < t1:
		a0 := int64(tr.A0)
		w = w0 + a0*e/1000
		x = w0*e/1000 + a0*e*e/2000000
		acc = a0
	case e < t2:
		x = tr.X1 + w1*(e-t1)/1000
		w = w1
	case e < t3:
		a2 := int64(tr.A2)
		dt := e - t2
		w = w1 + a2*dt/1000
		x = tr.X2 + w1*dt/1000 + a2*dt*dt/2000000
		acc = a2
	default:
		x = tr.X3
	}
	if tr.Reverse {
		x, w, acc = -x, -w, -acc
	}
	return Reference{Angle: tr.StartAngle + x, Speed: int32(w), Acceleration: int32(acc)}
}

// Rebase moves the start of an endless trajectory to now once it cruises,
// keeping the reference unchanged. It keeps elapsed times small on long runs.
func (tr *Trajectory) Rebase(now uint32) {
	if !tr.Forever {
		return
	}
	e := tr.Elapsed(now)
	if e < tr.T1 {
		return
	}
	ref := tr.Evaluate(now)
	tr.Start = now
	tr.StartAngle = ref.Angle
	tr.W0 = tr.W1
	tr.T1 = 0
	tr.X1 = 0
}
