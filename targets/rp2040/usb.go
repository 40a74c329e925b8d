//go:build rp2040

package main

import "machine"

// machine.Serial is USB CDC on the RP2040

func initUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

func usbAvailable() int {
	return machine.Serial.Buffered()
}

func usbRead() (byte, error) {
	return machine.Serial.ReadByte()
}

func usbWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
