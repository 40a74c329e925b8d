// Package model holds the DC motor models used by the observer and the
// feedback controller.
//
// A motor is described by its physical parameters (Params). The discrete
// time state space model x(k+1) = A x(k) + B u(k) with state
// [angle, speed, current] and input [voltage, load torque] is obtained from
// the matrix exponential of the continuous system and stored as prescaled
// integer coefficients (Model), so the control path needs no floating point.
package model

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"gobricks/core"
	"gobricks/fixmath"
)

// Unit scalers from SI to the integer units used on the control path.
const (
	scaleAngle   = 180 * 1000 / math.Pi // millidegrees per radian
	scaleTorque  = 1e6                  // micronewtonmeters per newtonmeter
	scaleVoltage = 1e3                  // millivolts per volt
	scaleCurrent = 1e4                  // tenths of milliamperes per ampere
)

// Upper bounds of the integer signals for any supported motor.
const (
	MaxSpeed        = 43633231 // mdeg/s, 2500 deg/s
	MaxAcceleration = 436332312
	MaxCurrent      = 30000 // 3 A
	MaxVoltage      = 12000
	MaxTorque       = 1000000
)

// ControlPeriod is the fixed interval between control updates.
const ControlPeriod = 5 * time.Millisecond

// ControlPeriodMS is ControlPeriod in milliseconds.
const ControlPeriodMS = 5

// Params are the physical constants of a DC motor in SI units.
type Params struct {
	Resistance     float64 // ohm
	Inductance     float64 // henry
	BackEMF        float64 // volt per rad/s
	TorqueConstant float64 // newtonmeter per ampere
	Inertia        float64 // kg m^2
	Friction       float64 // coulomb friction, newtonmeter
}

// Curve is a motor characterisation from two steady state measurements at a
// fixed voltage plus an acceleration and inductance estimate.
type Curve struct {
	Voltage       float64 // volt
	TorqueLoaded  float64 // newtonmeter
	CurrentLoaded float64 // ampere
	SpeedLoaded   float64 // rad/s
	TorqueFree    float64
	CurrentFree   float64
	SpeedFree     float64
	Acceleration  float64 // rad/s^2 from standstill at Voltage
	Inductance    float64 // henry
}

// ParamsFromCurve solves the motor equations for the two measured operating
// points of c.
func ParamsFromCurve(c Curve) (Params, error) {
	if c.CurrentLoaded == c.CurrentFree || c.TorqueLoaded == c.TorqueFree || c.Acceleration <= 0 {
		return Params{}, errors.Wrap(core.ErrInvalidArgument, "degenerate motor curve")
	}
	kt := (c.TorqueLoaded - c.TorqueFree) / (c.CurrentLoaded - c.CurrentFree)
	friction := kt*c.CurrentFree - c.TorqueFree
	rOverKe := kt * (c.SpeedLoaded - c.SpeedFree) / (c.TorqueFree - c.TorqueLoaded)
	ke := c.Voltage / (c.SpeedFree + rOverKe/kt*(c.TorqueFree+friction))
	r := rOverKe * ke
	p := Params{
		Resistance:     r,
		Inductance:     c.Inductance,
		BackEMF:        ke,
		TorqueConstant: kt,
		Inertia:        (kt*c.Voltage/r - friction) / c.Acceleration,
		Friction:       friction,
	}
	return p, p.Validate()
}

// Validate checks that all parameters are physically meaningful.
func (p Params) Validate() error {
	if !(p.Resistance > 0 && p.Inductance > 0 && p.BackEMF > 0 && p.TorqueConstant > 0 && p.Inertia > 0) {
		return errors.Wrapf(core.ErrInvalidArgument, "motor parameters must be positive: %+v", p)
	}
	if p.Friction < 0 {
		return errors.Wrapf(core.ErrInvalidArgument, "negative friction %g", p.Friction)
	}
	return nil
}

// Discrete is the floating point discrete time model in integer units.
type Discrete struct {
	A [3][3]float64 // state transition for [angle, speed, current]
	B [3][2]float64 // input matrix for [voltage, torque]

	TorquePerVoltage      float64 // steady state stall torque per volt
	VoltagePerTorque      float64
	TorquePerSpeed        float64 // back EMF torque per mdeg/s
	TorquePerAcceleration float64 // inertial torque per mdeg/s^2
	FrictionTorque        float64 // µNm
}

// Discretize computes the discrete model of p for sample time h.
func Discretize(p Params, h time.Duration) (Discrete, error) {
	if err := p.Validate(); err != nil {
		return Discrete{}, err
	}
	if h <= 0 {
		return Discrete{}, errors.Wrapf(core.ErrInvalidArgument, "sample time %v", h)
	}

	// Continuous system in integer units:
	//   d angle/dt   = speed
	//   d speed/dt   = Kt/In i - tau/In
	//   d current/dt = V/L - Ke/L w - R/L i
	phi := [3][3]float64{
		{0, 1, 0},
		{0, 0, scaleAngle * p.TorqueConstant / p.Inertia / scaleCurrent},
		{0, -scaleCurrent * p.BackEMF / p.Inductance / scaleAngle, -p.Resistance / p.Inductance},
	}
	gam := [3][2]float64{
		{0, 0},
		{0, -scaleAngle / p.Inertia / scaleTorque},
		{scaleCurrent / p.Inductance / scaleVoltage, 0},
	}

	// exp([[Phi Gam] [0 0]] h) = [[A B] [0 I]]
	sec := h.Seconds()
	aug := mat.NewDense(5, 5, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			aug.Set(i, j, phi[i][j]*sec)
		}
		for j := 0; j < 2; j++ {
			aug.Set(i, 3+j, gam[i][j]*sec)
		}
	}
	var e mat.Dense
	e.Exp(aug)

	var d Discrete
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.A[i][j] = e.At(i, j)
		}
		for j := 0; j < 2; j++ {
			d.B[i][j] = e.At(i, 3+j)
		}
	}

	d.TorquePerVoltage = p.TorqueConstant / p.Resistance * scaleTorque / scaleVoltage
	d.VoltagePerTorque = 1 / d.TorquePerVoltage
	d.TorquePerSpeed = p.TorqueConstant / p.Resistance * p.BackEMF * scaleTorque / scaleAngle
	d.TorquePerAcceleration = p.Inertia * scaleTorque / scaleAngle
	d.FrictionTorque = p.Friction * scaleTorque
	return d, nil
}

// Model is the fixed-point observer and feedforward model of a motor at
// ControlPeriod. Each coefficient is the partial derivative of the next
// state with respect to the current state or input.
type Model struct {
	DAngleDSpeed     fixmath.Coef
	DSpeedDSpeed     fixmath.Coef
	DCurrentDSpeed   fixmath.Coef
	DAngleDCurrent   fixmath.Coef
	DSpeedDCurrent   fixmath.Coef
	DCurrentDCurrent fixmath.Coef
	DAngleDVoltage   fixmath.Coef
	DSpeedDVoltage   fixmath.Coef
	DCurrentDVoltage fixmath.Coef
	DAngleDTorque    fixmath.Coef
	DSpeedDTorque    fixmath.Coef
	DCurrentDTorque  fixmath.Coef

	// Steady state conversions for feedforward and actuation.
	DVoltageDTorque      fixmath.Coef
	DTorqueDVoltage      fixmath.Coef
	DTorqueDSpeed        fixmath.Coef
	DTorqueDAcceleration fixmath.Coef

	TorqueFriction int32 // µNm
}

// Derive computes the fixed-point model of p at ControlPeriod.
func Derive(p Params) (Model, error) {
	d, err := Discretize(p, ControlPeriod)
	if err != nil {
		return Model{}, err
	}
	q := fixmath.Quantize
	return Model{
		DAngleDSpeed:         q(d.A[0][1]),
		DSpeedDSpeed:         q(d.A[1][1]),
		DCurrentDSpeed:       q(d.A[2][1]),
		DAngleDCurrent:       q(d.A[0][2]),
		DSpeedDCurrent:       q(d.A[1][2]),
		DCurrentDCurrent:     q(d.A[2][2]),
		DAngleDVoltage:       q(d.B[0][0]),
		DSpeedDVoltage:       q(d.B[1][0]),
		DCurrentDVoltage:     q(d.B[2][0]),
		DAngleDTorque:        q(d.B[0][1]),
		DSpeedDTorque:        q(d.B[1][1]),
		DCurrentDTorque:      q(d.B[2][1]),
		DVoltageDTorque:      q(d.VoltagePerTorque),
		DTorqueDVoltage:      q(d.TorquePerVoltage),
		DTorqueDSpeed:        q(d.TorquePerSpeed),
		DTorqueDAcceleration: q(d.TorquePerAcceleration),
		TorqueFriction:       int32(math.Round(d.FrictionTorque)),
	}, nil
}

// VoltageToTorque returns the stall torque at the given voltage.
func (m *Model) VoltageToTorque(voltage int32) int32 {
	return m.DTorqueDVoltage.Apply32(voltage)
}

// TorqueToVoltage returns the voltage that produces torque at standstill.
func (m *Model) TorqueToVoltage(torque int32) int32 {
	return m.DVoltageDTorque.Apply32(torque)
}

// Feedforward returns the torque needed to follow a reference with the
// given speed and acceleration: coulomb friction, back EMF and inertia.
func (m *Model) Feedforward(speed, acceleration int32) int32 {
	friction := m.TorqueFriction * fixmath.Sign(int64(speed))
	backEMF := m.DTorqueDSpeed.Apply(int64(speed))
	inertia := m.DTorqueDAcceleration.Apply(int64(acceleration))
	return fixmath.Sat32(int64(friction) + backEMF + inertia)
}

// Friction returns the modified coulomb friction at speed, linear in speed
// through the origin below limit so the model has no discontinuity at rest.
func (m *Model) Friction(speed, limit int32) int32 {
	if speed > limit {
		return m.TorqueFriction
	}
	if speed < -limit {
		return -m.TorqueFriction
	}
	return int32(int64(m.TorqueFriction) * int64(speed) / int64(limit))
}
