//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 timer peripheral, a 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// uptime reads the full 64-bit microsecond timer.
func uptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		// Retry on rollover between the reads
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// hwClock is the control loop time base.
type hwClock struct{}

func (hwClock) Millis() uint32 {
	return uint32(uptime() / 1000)
}
