package control

import (
	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/model"
	"gobricks/trajectory"
)

// MaxGain bounds kp, ki and kd so that products with an int32 error stay
// far inside int64.
const MaxGain = 1000000

// MaxStallTime bounds the stall and on-target dwell times in ms.
const MaxStallTime = 60000

// Limits are the motion and actuation bounds of a servo.
type Limits struct {
	Speed        int32 // mdeg/s
	Acceleration int32 // mdeg/s^2
	Deceleration int32 // mdeg/s^2
	Duty         int32 // 0..core.DutyMax
	Torque       int32 // µNm
}

// PID holds the feedback gains. Kp is in µNm/deg, Ki in µNm/(deg s) and Kd
// in µNm/(deg/s). IntegralRate caps how fast the integral may grow, in mdeg/s.
type PID struct {
	Kp, Ki, Kd   int32
	IntegralRate int32
}

// Tolerances decide when a position command is complete.
type Tolerances struct {
	Position int32  // mdeg
	Speed    int32  // mdeg/s
	Dwell    uint32 // ms both must hold continuously
}

// Stall configures stall detection.
type Stall struct {
	Speed int32  // mdeg/s
	Time  uint32 // ms
}

// Settings is the complete control configuration of one servo.
type Settings struct {
	Limits     Limits
	PID        PID
	Tolerances Tolerances
	Stall      Stall
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(core.ErrInvalidArgument, format, args...)
}

// Validate checks the limits against the physical bounds of any motor.
func (l Limits) Validate() error {
	if l.Speed <= 0 || l.Speed > model.MaxSpeed {
		return invalid("speed limit %d", l.Speed)
	}
	if l.Acceleration < trajectory.MinAcceleration || l.Acceleration > trajectory.MaxAcceleration {
		return invalid("acceleration %d", l.Acceleration)
	}
	if l.Deceleration < trajectory.MinAcceleration || l.Deceleration > trajectory.MaxAcceleration {
		return invalid("deceleration %d", l.Deceleration)
	}
	if l.Duty <= 0 || l.Duty > core.DutyMax {
		return invalid("duty limit %d", l.Duty)
	}
	if l.Torque <= 0 || l.Torque > model.MaxTorque {
		return invalid("torque limit %d", l.Torque)
	}
	return nil
}

func (p PID) Validate() error {
	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 || p.Kp > MaxGain || p.Ki > MaxGain || p.Kd > MaxGain {
		return invalid("gains kp=%d ki=%d kd=%d", p.Kp, p.Ki, p.Kd)
	}
	if p.IntegralRate < 0 || p.IntegralRate > model.MaxSpeed {
		return invalid("integral rate %d", p.IntegralRate)
	}
	return nil
}

func (t Tolerances) Validate() error {
	if t.Position < 0 || t.Speed < 0 || t.Dwell > MaxStallTime {
		return invalid("tolerances %+v", t)
	}
	return nil
}

func (s Stall) Validate() error {
	if s.Speed < 0 || s.Speed > model.MaxSpeed || s.Time > MaxStallTime {
		return invalid("stall detection %+v", s)
	}
	return nil
}

// Validate checks all groups.
func (s *Settings) Validate() error {
	if err := s.Limits.Validate(); err != nil {
		return err
	}
	if err := s.PID.Validate(); err != nil {
		return err
	}
	if err := s.Tolerances.Validate(); err != nil {
		return err
	}
	return s.Stall.Validate()
}

// TrajectoryLimits returns the planner limits.
func (s *Settings) TrajectoryLimits() trajectory.Limits {
	return trajectory.Limits{Acceleration: s.Limits.Acceleration, Deceleration: s.Limits.Deceleration}
}

// base holds the tuned defaults per device, in degrees as they were tuned.
type base struct {
	speed, accel         int32 // deg/s, deg/s^2
	speedTol, posTol     int32 // deg/s, deg
	stallSpeed           int32 // deg/s
	kp, kd, integralRate int32
}

var defaults = [...]base{
	model.EV3Medium:       {speed: 2000, accel: 8000, speedTol: 100, posTol: 10, stallSpeed: 30, kp: 3000, kd: 30, integralRate: 10},
	model.EV3Large:        {speed: 1600, accel: 3200, speedTol: 100, posTol: 10, stallSpeed: 30, kp: 15000, kd: 250, integralRate: 10},
	model.TechnicSAngular: {speed: 620, accel: 2000, speedTol: 50, posTol: 10, stallSpeed: 20, kp: 7500, kd: 1000, integralRate: 15},
	model.TechnicMAngular: {speed: 1080, accel: 2000, speedTol: 50, posTol: 10, stallSpeed: 20, kp: 15000, kd: 1800, integralRate: 15},
	model.TechnicLAngular: {speed: 970, accel: 1500, speedTol: 50, posTol: 10, stallSpeed: 20, kp: 35000, kd: 6000, integralRate: 15},
	model.Interactive:     {speed: 1000, accel: 2000, speedTol: 50, posTol: 5, stallSpeed: 15, kp: 13500, kd: 1350, integralRate: 10},
	model.MoveHub:         {speed: 1500, accel: 5000, speedTol: 50, posTol: 6, stallSpeed: 15, kp: 15000, kd: 500, integralRate: 5},
	model.TechnicL:        {speed: 1470, accel: 1500, speedTol: 50, posTol: 10, stallSpeed: 20, kp: 20000, kd: 2500, integralRate: 5},
	model.TechnicXL:       {speed: 1525, accel: 2500, speedTol: 50, posTol: 10, stallSpeed: 20, kp: 17500, kd: 2500, integralRate: 5},
}

// DefaultStallTime and DefaultDwell apply to all devices.
const (
	DefaultStallTime = 200
	DefaultDwell     = 10
)

// DefaultSettings returns the tuned settings of a device. The torque limit is
// the stall torque at the maximum voltage and ki lets the integral reach it
// in about two seconds at the position tolerance.
func DefaultSettings(dev model.Device) Settings {
	b := defaults[dev.Type]
	return Settings{
		Limits: Limits{
			Speed:        b.speed * 1000,
			Acceleration: b.accel * 1000,
			Deceleration: b.accel * 1000,
			Duty:         core.DutyMax,
			Torque:       dev.MaxTorque,
		},
		PID: PID{
			Kp:           b.kp,
			Ki:           dev.MaxTorque / b.posTol / 2,
			Kd:           b.kd,
			IntegralRate: b.integralRate * 1000,
		},
		Tolerances: Tolerances{
			Position: b.posTol * 1000,
			Speed:    b.speedTol * 1000,
			Dwell:    DefaultDwell,
		},
		Stall: Stall{
			Speed: b.stallSpeed * 1000,
			Time:  DefaultStallTime,
		},
	}
}
