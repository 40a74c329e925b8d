// Package control implements the servo feedback controller.
//
// The controller compares the estimated motor state with a reference
// trajectory and produces a torque: proportional and integral on the angle
// error, derivative on the speed error, plus model feedforward of the
// reference speed and acceleration. It also decides when a position command
// is on target and when the motor is stalled.
package control

import (
	"gobricks/fixmath"
	"gobricks/model"
	"gobricks/trajectory"
)

// Mode selects how the trajectory is followed.
type Mode uint8

const (
	// ModePosition tracks the reference angle with PID control. Completion
	// requires the angle to settle within tolerance.
	ModePosition Mode = iota

	// ModeTime tracks the reference with PD control only. While the motor
	// cannot keep up, reference time is paused instead of integrating the
	// error. Completion is time based.
	ModeTime
)

// rebaseAfter is the elapsed time after which endless trajectories are
// rebased to keep elapsed times far from wrapping.
const rebaseAfter = 1 << 24

// Output is the result of one controller update.
type Output struct {
	Torque int32 // µNm, clamped to the torque limit

	Proportional int32
	Integral     int32
	Derivative   int32
	Feedforward  int32

	Reference  trajectory.Reference
	Error      int32 // reference angle minus estimated angle
	SpeedError int32
	Saturated  bool
}

// Controller is the feedback controller of one servo.
type Controller struct {
	m        *model.Model
	settings *Settings

	active bool
	mode   Mode
	traj   trajectory.Trajectory

	integral int64  // mdeg ms
	paused   uint32 // ms of reference time skipped while pushing
	last     uint32

	stallTiming bool
	stallSince  uint32
	stalled     bool

	onTiming bool
	onSince  uint32
	onTarget bool
}

// New creates an idle controller. settings is shared with the owner so
// updated settings take effect on the next update.
func New(m *model.Model, settings *Settings) *Controller {
	return &Controller{m: m, settings: settings}
}

// Start begins following tr and clears the integral, stall and completion
// state.
func (c *Controller) Start(tr trajectory.Trajectory, mode Mode, now uint32) {
	c.traj = tr
	c.mode = mode
	c.active = true
	c.integral = 0
	c.paused = 0
	c.last = now
	c.stallTiming, c.stalled = false, false
	c.onTiming, c.onTarget = false, false
}

// Retarget replaces the trajectory of a running position controller without
// clearing its integral.
func (c *Controller) Retarget(tr trajectory.Trajectory) {
	c.traj = tr
	c.onTiming, c.onTarget = false, false
}

// Stop makes the controller idle.
func (c *Controller) Stop() {
	c.active = false
	c.stallTiming, c.stalled = false, false
	c.onTiming, c.onTarget = false, false
}

// Active reports whether a trajectory is being followed.
func (c *Controller) Active() bool {
	return c.active
}

func (c *Controller) Mode() Mode {
	return c.mode
}

// Trajectory returns the trajectory being followed.
func (c *Controller) Trajectory() trajectory.Trajectory {
	return c.traj
}

// RefTime returns the trajectory time corresponding to now.
func (c *Controller) RefTime(now uint32) uint32 {
	return now - c.paused
}

// Reference evaluates the trajectory at now.
func (c *Controller) Reference(now uint32) trajectory.Reference {
	return c.traj.Evaluate(c.RefTime(now))
}

// TrajectoryDone reports whether the reference has reached its end.
func (c *Controller) TrajectoryDone(now uint32) bool {
	return c.traj.Done(c.RefTime(now))
}

// OnTarget reports whether a position command has settled at its target
// for the dwell time.
func (c *Controller) OnTarget() bool {
	return c.onTarget
}

// Stalled reports whether the torque has been saturated at low speed for
// the stall time.
func (c *Controller) Stalled() bool {
	return c.stalled
}

// StallDuration returns how long the stall condition has held, zero when it
// does not hold.
func (c *Controller) StallDuration(now uint32) uint32 {
	if !c.stallTiming {
		return 0
	}
	return now - c.stallSince
}

// Integral returns the accumulated angle error in mdeg ms.
func (c *Controller) Integral() int64 {
	return c.integral
}

// Update computes the torque for the estimated angle and speed at now.
func (c *Controller) Update(now uint32, angle int64, speed int32) Output {
	s := c.settings
	maxTorque := int64(s.Limits.Torque)

	dt := fixmath.TimeDiff(now, c.last)
	if dt < 0 {
		dt = 0
	}
	c.last = now

	refTime := c.RefTime(now)
	if c.traj.Forever && c.traj.Elapsed(refTime) > rebaseAfter {
		c.traj.Rebase(refTime)
	}
	ref := c.traj.Evaluate(refTime)

	e := fixmath.Sat32(ref.Angle - angle)
	ed := fixmath.Sat32(int64(ref.Speed) - int64(speed))

	var out Output
	out.Reference = ref
	out.Error = e
	out.SpeedError = ed

	tp := int64(s.PID.Kp) * int64(e) / 1000
	td := int64(s.PID.Kd) * int64(ed) / 1000
	var ti int64
	if c.mode == ModePosition {
		ti = int64(s.PID.Ki) * c.integral / 1000000
	}
	ff := int64(c.m.Feedforward(ref.Speed, ref.Acceleration))

	total := tp + ti + td + ff
	saturated := total >= maxTorque || total <= -maxTorque
	pushing := saturated && (total > 0) == (e > 0)

	if c.mode == ModeTime {
		if pushing {
			c.paused += uint32(dt)
		}
	} else if !pushing {
		ei := fixmath.Clamp(e, s.PID.IntegralRate)
		c.integral += int64(ei) * int64(dt)
		if s.PID.Ki > 0 {
			c.integral = fixmath.Clamp64(c.integral, maxTorque*1000000/int64(s.PID.Ki))
		} else {
			c.integral = 0
		}
	}

	out.Proportional = fixmath.Sat32(tp)
	out.Integral = fixmath.Sat32(ti)
	out.Derivative = fixmath.Sat32(td)
	out.Feedforward = fixmath.Sat32(ff)
	out.Torque = int32(fixmath.Clamp64(total, maxTorque))
	out.Saturated = saturated

	c.updateStall(now, saturated, speed)
	c.updateOnTarget(now, refTime, e, ed)
	return out
}

func (c *Controller) updateStall(now uint32, saturated bool, speed int32) {
	if !saturated || fixmath.Abs(speed) >= c.settings.Stall.Speed {
		c.stallTiming, c.stalled = false, false
		return
	}
	if !c.stallTiming {
		c.stallTiming = true
		c.stallSince = now
	}
	c.stalled = now-c.stallSince >= c.settings.Stall.Time
}

func (c *Controller) updateOnTarget(now, refTime uint32, e, ed int32) {
	tol := &c.settings.Tolerances
	ok := c.mode == ModePosition &&
		c.traj.Done(refTime) &&
		fixmath.Abs(e) <= tol.Position &&
		fixmath.Abs(ed) <= tol.Speed
	if !ok {
		c.onTiming, c.onTarget = false, false
		return
	}
	if !c.onTiming {
		c.onTiming = true
		c.onSince = now
	}
	c.onTarget = now-c.onSince >= tol.Dwell
}
