//go:build !tinygo

package core

// irqState mirrors runtime/interrupt.State on hosted builds.
type irqState uintptr

// lockIRQ is a no-op on hosted builds where timers run on one goroutine.
func lockIRQ() irqState {
	return 0
}

func unlockIRQ(irqState) {}
