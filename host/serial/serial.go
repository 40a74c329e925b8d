// Package serial opens the USB CDC port of a servo board.
package serial

import (
	"io"
	"time"

	"gobricks/config"
)

// Port is an open serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate, ignored by USB CDC
	Baud int

	// ReadTimeout bounds each Read; zero blocks.
	ReadTimeout time.Duration
}

// FromConfig takes the port settings of a loaded config.
func FromConfig(c config.SerialConfig) *Config {
	return &Config{Device: c.Port, Baud: c.Baud, ReadTimeout: c.Read}
}

// DefaultConfig returns the settings the firmware expects.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}
