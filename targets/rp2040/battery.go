//go:build rp2040

package main

import "machine"

// vsysBattery reads VSYS through the on-board 1:3 divider on ADC3.
type vsysBattery struct {
	adc machine.ADC
}

func newBattery() *vsysBattery {
	machine.InitADC()
	b := &vsysBattery{adc: machine.ADC{Pin: machine.ADC3}}
	b.adc.Configure(machine.ADCConfig{})
	return b
}

// Voltage returns the supply in mV. Get is scaled to 16 bits.
func (b *vsysBattery) Voltage() (int32, error) {
	raw := int32(b.adc.Get())
	return raw * 3300 * 3 / 65535, nil
}
