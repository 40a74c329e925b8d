// Package observer estimates motor angle, speed and current from quantized
// encoder readings.
//
// The observer runs the fixed-point motor model one control period ahead and
// corrects it with a torque proportional to the difference between the
// measured and the estimated angle. The correction is applied through the
// model input as an equivalent voltage, so the estimate always follows the
// motor dynamics and needs no numerical differentiation.
package observer

import (
	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/fixmath"
	"gobricks/model"
)

// FrictionSpeed is the speed below which the friction model is linear.
const FrictionSpeed = 2000

// Gains are the feedback gains of the observer in µNm per mdeg of angle
// error. Errors beyond Threshold get the additional High gain so the
// estimate catches up quickly after a disturbance.
type Gains struct {
	Low       int32
	High      int32
	Threshold int32 // mdeg
}

// DefaultGains are suitable for all supported motors.
var DefaultGains = Gains{Low: 5, High: 50, Threshold: 3000}

// Validate checks that the gains are usable.
func (g Gains) Validate() error {
	if g.Low < 0 || g.High < 0 || g.Threshold < 0 {
		return errors.Wrapf(core.ErrInvalidArgument, "observer gains %+v", g)
	}
	if g.Low > 1000 || g.High > 1000 {
		return errors.Wrapf(core.ErrInvalidArgument, "observer gain too high %+v", g)
	}
	return nil
}

// State is the estimated motor state.
type State struct {
	Angle   int64 // mdeg
	Speed   int32 // mdeg/s
	Current int32 // 0.1 mA
}

// Observer is a Luenberger state estimator for one motor.
type Observer struct {
	m          *model.Model
	gains      Gains
	maxVoltage int32

	state    State
	feedback int32 // µNm
	err      int32 // last angle error, mdeg
}

// New creates an observer at rest at angle zero.
func New(m *model.Model, maxVoltage int32, g Gains) *Observer {
	return &Observer{m: m, gains: g, maxVoltage: maxVoltage}
}

// SetGains replaces the feedback gains.
func (o *Observer) SetGains(g Gains) error {
	if err := g.Validate(); err != nil {
		return err
	}
	o.gains = g
	return nil
}

func (o *Observer) Gains() Gains {
	return o.gains
}

// Reset puts the estimate at rest at angle.
func (o *Observer) Reset(angle int64) {
	o.state = State{Angle: angle}
	o.feedback = 0
	o.err = 0
}

// Shift moves the estimate by delta without changing speed or current. It is
// used when the angle frame is redefined.
func (o *Observer) Shift(delta int64) {
	o.state.Angle += delta
}

// State returns the latest estimate.
func (o *Observer) State() State {
	return o.state
}

// FeedbackTorque returns the correction torque of the latest update.
func (o *Observer) FeedbackTorque() int32 {
	return o.feedback
}

// Load returns the estimated external torque. It is positive when the load
// resists positive motion.
func (o *Observer) Load() int32 {
	return -o.feedback
}

// Error returns the difference between the measured and estimated angle at
// the latest update.
func (o *Observer) Error() int32 {
	return o.err
}

// BackEMFVoltage returns the terminal voltage of a freely spinning motor at
// the estimated speed. It is the model input while coasting.
func (o *Observer) BackEMFVoltage() int32 {
	torque := o.m.DTorqueDSpeed.Apply32(o.state.Speed)
	return o.m.DVoltageDTorque.Apply32(torque)
}

// Update advances the estimate by one control period. measured is the
// encoder angle and voltage the average voltage applied during the period
// that just ended.
func (o *Observer) Update(measured int64, voltage int32) State {
	m := o.m
	s := o.state

	e := fixmath.Sat32(measured - s.Angle)
	o.err = e

	fb := int64(o.gains.Low) * int64(e)
	if thr := o.gains.Threshold; e > thr {
		fb += int64(o.gains.High) * int64(e-thr)
	} else if e < -thr {
		fb += int64(o.gains.High) * int64(e+thr)
	}
	fbVoltage := fixmath.Clamp(m.DVoltageDTorque.Apply32(fixmath.Sat32(fb)), o.maxVoltage)
	o.feedback = m.DTorqueDVoltage.Apply32(fbVoltage)

	v := int64(voltage) + int64(fbVoltage)
	f := int64(m.Friction(s.Speed, FrictionSpeed))
	w := int64(s.Speed)
	i := int64(s.Current)

	angle := s.Angle +
		m.DAngleDSpeed.Apply(w) +
		m.DAngleDCurrent.Apply(i) +
		m.DAngleDVoltage.Apply(v) +
		m.DAngleDTorque.Apply(f)

	speed := m.DSpeedDSpeed.Apply(w) +
		m.DSpeedDCurrent.Apply(i) +
		m.DSpeedDVoltage.Apply(v)

	// Friction slows the motor down but never reverses it.
	fw := m.DSpeedDTorque.Apply(f)
	if speed != 0 && (speed < 0) != (speed+fw < 0) {
		speed = 0
	} else {
		speed += fw
	}

	current := m.DCurrentDSpeed.Apply(w) +
		m.DCurrentDCurrent.Apply(i) +
		m.DCurrentDVoltage.Apply(v) +
		m.DCurrentDTorque.Apply(f)

	o.state = State{
		Angle:   angle,
		Speed:   int32(fixmath.Clamp64(speed, model.MaxSpeed)),
		Current: int32(fixmath.Clamp64(current, model.MaxCurrent)),
	}
	return o.state
}
