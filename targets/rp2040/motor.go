//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/l293x"

	"gobricks/core"
)

// pwmPeripheral abstracts over TinyGo's unexported PWM group type.
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// pwmPeriod is the H-bridge switching period, 20 kHz.
const pwmPeriod = 50000 // ns

// bridge drives one motor through an L293 style H-bridge. The driver takes
// speed in percent, so duty is applied with 1% resolution.
type bridge struct {
	dev  l293x.PWMDevice
	a, b machine.Pin
}

func newBridge(a, b, en machine.Pin, pwm pwmPeripheral) (*bridge, error) {
	if err := pwm.Configure(machine.PWMConfig{Period: pwmPeriod}); err != nil {
		return nil, err
	}
	m := &bridge{dev: l293x.NewWithSpeed(a, b, en, pwm), a: a, b: b}
	if err := m.dev.Configure(); err != nil {
		return nil, err
	}
	m.dev.Stop()
	return m, nil
}

func (m *bridge) SetDuty(duty int32) error {
	pct := uint32(abs32(duty) * 100 / core.DutyMax)
	switch {
	case duty > 0:
		m.dev.Forward(pct)
	case duty < 0:
		m.dev.Backward(pct)
	default:
		m.dev.Stop()
	}
	return nil
}

func (m *bridge) Coast() error {
	m.dev.Stop()
	return nil
}

// Brake enables the bridge with both inputs high, shorting the motor.
func (m *bridge) Brake() error {
	m.dev.Forward(100)
	m.b.High()
	return nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
