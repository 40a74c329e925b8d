//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// lockIRQ masks interrupts so the timer list is not modified mid-walk.
func lockIRQ() irqState {
	return interrupt.Disable()
}

func unlockIRQ(s irqState) {
	interrupt.Restore(s)
}
