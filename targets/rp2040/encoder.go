//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
	"tinygo.org/x/drivers/encoders"
)

// quadrature decodes both edges of both channels in pin interrupts.
type quadrature struct {
	dev *encoders.QuadratureDevice
}

func newQuadrature(a, b machine.Pin) (*quadrature, error) {
	dev := encoders.NewQuadratureViaInterrupt(a, b)
	if err := dev.Configure(encoders.QuadratureConfig{Precision: 4}); err != nil {
		return nil, err
	}
	return &quadrature{dev: dev}, nil
}

func (q *quadrature) Count() (int32, error) {
	return int32(q.dev.Position()), nil
}

// Edge counter program: count rising edges of channel A, up when B is
// low and down when B is high, and push X after every edge. Pin 0 is A,
// the jmp pin is B.
func counterProgram() []uint16 {
	return []uint16{
		// .wrap_target
		rp2pio.EncodeWaitPin(false, 0),                        // 0: wait 0 pin 0
		rp2pio.EncodeWaitPin(true, 0),                         // 1: wait 1 pin 0
		rp2pio.EncodeJmp(7, rp2pio.JmpPinInput),               // 2: jmp pin, 7
		rp2pio.EncodeMovNot(rp2pio.SrcDestX, rp2pio.SrcDestX), // 3: mov x, ~x
		rp2pio.EncodeJmp(5, rp2pio.JmpXNZeroDec),              // 4: jmp x--, 5
		rp2pio.EncodeMovNot(rp2pio.SrcDestX, rp2pio.SrcDestX), // 5: mov x, ~x
		rp2pio.EncodeJmp(8, rp2pio.JmpAlways),                 // 6: jmp 8
		rp2pio.EncodeJmp(8, rp2pio.JmpXNZeroDec),              // 7: jmp x--, 8
		rp2pio.EncodeMov(rp2pio.SrcDestISR, rp2pio.SrcDestX),  // 8: mov isr, x
		rp2pio.EncodePush(false, false),                       // 9: push noblock
		// .wrap
	}
}

// pioCounter counts encoder edges in a PIO state machine, leaving the
// CPU free of encoder interrupts. It resolves one count per cycle of A.
type pioCounter struct {
	sm    rp2pio.StateMachine
	count int32
}

func newPIOCounter(block *rp2pio.PIO, a, b machine.Pin) (*pioCounter, error) {
	sm, err := block.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	prog := counterProgram()
	// Jumps are absolute, so the program is pinned to offset 0.
	offset, err := block.AddProgram(prog, 0)
	if err != nil {
		return nil, err
	}
	a.Configure(machine.PinConfig{Mode: block.PinMode()})
	b.Configure(machine.PinConfig{Mode: block.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetInPins(a)
	cfg.SetJmpPin(b)
	cfg.SetWrap(offset, offset+uint8(len(prog))-1)
	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(a, 1, false)
	sm.SetPindirsConsecutive(b, 1, false)
	sm.SetEnabled(true)
	return &pioCounter{sm: sm}, nil
}

// Count drains the RX FIFO and keeps the newest count.
func (p *pioCounter) Count() (int32, error) {
	for !p.sm.IsRxFIFOEmpty() {
		p.count = int32(p.sm.RxGet())
	}
	return p.count, nil
}
