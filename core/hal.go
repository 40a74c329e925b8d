package core

import "sync/atomic"

// DutyMax is full scale of a signed motor duty cycle.
const DutyMax = 10000

// MotorDriver is the H-bridge a servo writes to. Platform code implements it
// for real hardware, the simulator implements it for tests.
type MotorDriver interface {
	// SetDuty drives the motor with a signed duty cycle in [-DutyMax, DutyMax].
	SetDuty(duty int32) error

	// Coast lets the motor spin freely.
	Coast() error

	// Brake shorts the motor terminals.
	Brake() error
}

// EncoderDriver reads the raw position counter of a motor. The count wraps
// at the int32 boundary.
type EncoderDriver interface {
	Count() (int32, error)
}

// BatteryDriver reads the supply voltage in millivolts.
type BatteryDriver interface {
	Voltage() (int32, error)
}

// Clock is the millisecond time base of the control loop. It wraps.
type Clock interface {
	Millis() uint32
}

// ManualClock is a Clock advanced explicitly, used by the simulator and tests.
type ManualClock struct {
	ms atomic.Uint32
}

func (c *ManualClock) Millis() uint32 {
	return c.ms.Load()
}

// Set moves the clock to ms.
func (c *ManualClock) Set(ms uint32) {
	c.ms.Store(ms)
}

// Advance moves the clock forward by d milliseconds and returns the new time.
func (c *ManualClock) Advance(d uint32) uint32 {
	return c.ms.Add(d)
}
