// Package sim provides a virtual motor for tests and for the host tool.
//
// Motor integrates the continuous motor model with a 1 ms float64 step and
// implements the motor, encoder and battery drivers, so a servo can be run
// against it exactly as against hardware. Rig advances the clock, runs the
// control timers and steps all motors.
package sim

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/model"
)

const (
	// StepMS is the integration step.
	StepMS = 1

	endstopStiffness = 500 // µNm per mdeg
	endstopDamping   = 5   // µNm per mdeg/s
)

type driveMode uint8

const (
	modeCoast driveMode = iota
	modeDuty
	modeBrake
)

// Motor is a simulated DC motor with a quadrature encoder.
type Motor struct {
	d        model.Discrete
	friction float64
	backEMF  float64 // mV per mdeg/s

	x     [3]float64 // angle, speed, current
	mode  driveMode
	duty  int32
	volts float64 // battery, mV

	countsPerRotation int32

	endstops   bool
	min, max   float64
	loadTorque float64

	readFaults  int
	writeFaults int
}

// NewMotor creates a motor at rest at angle zero powered by 7.2 V.
func NewMotor(p model.Params) (*Motor, error) {
	d, err := model.Discretize(p, StepMS*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return &Motor{
		d:                 d,
		friction:          d.FrictionTorque,
		backEMF:           d.TorquePerSpeed / d.TorquePerVoltage,
		volts:             7200,
		countsPerRotation: 360,
	}, nil
}

// NewDevice creates a motor with the parameters of a known device.
func NewDevice(t model.DeviceType) (*Motor, error) {
	dev, err := model.Lookup(t)
	if err != nil {
		return nil, err
	}
	return NewMotor(dev.Params)
}

// SetCountsPerRotation sets the encoder resolution.
func (m *Motor) SetCountsPerRotation(n int32) error {
	if n <= 0 {
		return errors.Wrapf(core.ErrInvalidArgument, "counts per rotation %d", n)
	}
	m.countsPerRotation = n
	return nil
}

// SetBattery sets the supply voltage in mV.
func (m *Motor) SetBattery(mv int32) {
	m.volts = float64(mv)
}

// SetEndstops adds hard stops at min and max mdeg.
func (m *Motor) SetEndstops(min, max float64) {
	m.endstops = true
	m.min, m.max = min, max
}

// ClearEndstops removes the hard stops.
func (m *Motor) ClearEndstops() {
	m.endstops = false
}

// SetLoad applies a constant external torque in µNm opposing positive motion.
func (m *Motor) SetLoad(torque float64) {
	m.loadTorque = torque
}

// SetAngle places the rotor at angle mdeg, at rest.
func (m *Motor) SetAngle(angle float64) {
	m.x = [3]float64{angle, 0, 0}
}

// InjectReadFaults makes the next n encoder reads fail.
func (m *Motor) InjectReadFaults(n int) {
	m.readFaults = n
}

// InjectWriteFaults makes the next n motor writes fail without effect.
func (m *Motor) InjectWriteFaults(n int) {
	m.writeFaults = n
}

func (m *Motor) writeFault() error {
	if m.writeFaults > 0 {
		m.writeFaults--
		return errors.Wrap(core.ErrDriverFault, "simulated write failure")
	}
	return nil
}

// Angle returns the true rotor angle in mdeg.
func (m *Motor) Angle() float64 { return m.x[0] }

// Speed returns the true speed in mdeg/s.
func (m *Motor) Speed() float64 { return m.x[1] }

// Current returns the true current in 0.1 mA.
func (m *Motor) Current() float64 { return m.x[2] }

// Duty returns the last duty cycle written, or zero when not driven.
func (m *Motor) Duty() int32 {
	if m.mode != modeDuty {
		return 0
	}
	return m.duty
}

func (m *Motor) SetDuty(duty int32) error {
	if duty > core.DutyMax || duty < -core.DutyMax {
		return errors.Wrapf(core.ErrInvalidArgument, "duty %d", duty)
	}
	if err := m.writeFault(); err != nil {
		return err
	}
	m.mode = modeDuty
	m.duty = duty
	return nil
}

func (m *Motor) Coast() error {
	if err := m.writeFault(); err != nil {
		return err
	}
	m.mode = modeCoast
	return nil
}

func (m *Motor) Brake() error {
	if err := m.writeFault(); err != nil {
		return err
	}
	m.mode = modeBrake
	return nil
}

// Count returns the encoder count, truncated toward minus infinity.
func (m *Motor) Count() (int32, error) {
	if m.readFaults > 0 {
		m.readFaults--
		return 0, errors.Wrap(core.ErrSensorFault, "simulated read failure")
	}
	c := int64(math.Floor(m.x[0] * float64(m.countsPerRotation) / 360000))
	return int32(c), nil
}

// Voltage returns the battery voltage.
func (m *Motor) Voltage() (int32, error) {
	return int32(m.volts), nil
}

// Step advances the motor by one millisecond.
func (m *Motor) Step() {
	a, w, i := m.x[0], m.x[1], m.x[2]

	var v float64
	switch m.mode {
	case modeDuty:
		v = float64(m.duty) * m.volts / core.DutyMax
	case modeCoast:
		v = w * m.backEMF
	case modeBrake:
		v = 0
	}

	tau := m.loadTorque
	if m.endstops {
		if a > m.max {
			tau += (a-m.max)*endstopStiffness + w*endstopDamping
		} else if a < m.min {
			tau += (a-m.min)*endstopStiffness + w*endstopDamping
		}
	}

	A, B := &m.d.A, &m.d.B
	n := [3]float64{
		a + A[0][1]*w + A[0][2]*i + B[0][0]*v + B[0][1]*tau,
		A[1][1]*w + A[1][2]*i + B[1][0]*v + B[1][1]*tau,
		A[2][1]*w + A[2][2]*i + B[2][0]*v + B[2][1]*tau,
	}

	// Coulomb friction opposes the motion it would produce, and sticks the
	// rotor when it is strong enough to stop it within this step.
	var f float64
	switch {
	case math.Abs(n[1]) <= math.Abs(B[1][1]*m.friction):
		f = -n[1] / B[1][1]
	case n[1] > 0:
		f = m.friction
	default:
		f = -m.friction
	}
	m.x = [3]float64{
		n[0] + B[0][1]*f,
		n[1] + B[1][1]*f,
		n[2] + B[2][1]*f,
	}
}
