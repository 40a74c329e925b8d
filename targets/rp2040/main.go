//go:build rp2040

// Firmware for a two motor servo board: L293 H-bridges on PWM pins, hall
// encoders, and the host link over USB CDC.
package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gobricks/core"
	"gobricks/firmware"
	"gobricks/model"
	"gobricks/protocol"
	"gobricks/servo"
)

// Board wiring
const (
	motorAIn1 = machine.GPIO2
	motorAIn2 = machine.GPIO3
	motorAEn  = machine.GPIO4 // PWM2 A
	encAChanA = machine.GPIO6
	encAChanB = machine.GPIO7

	motorBIn1 = machine.GPIO10
	motorBIn2 = machine.GPIO11
	motorBEn  = machine.GPIO12 // PWM6 A
	encBChanA = machine.GPIO14
	encBChanB = machine.GPIO15
)

var (
	inputBuffer *protocol.FifoBuffer
	console     *firmware.Console
	sched       core.Scheduler
	clock       hwClock

	msgerrors uint32
)

func main() {
	// Clear watchdog state from a previous run
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	initUSB()

	battery := newBattery()
	servos := []*servo.Servo{
		mustServo(0, motorAIn1, motorAIn2, motorAEn, machine.PWM2, mustQuadrature(encAChanA, encAChanB), battery),
		mustServo(1, motorBIn1, motorBIn2, motorBEn, machine.PWM6, mustPIOCounter(encBChanA, encBChanB), battery),
	}
	for _, s := range servos {
		s := s
		sched.Add(&core.Timer{
			WakeTime: clock.Millis(),
			Handler: func(t *core.Timer) uint8 {
				s.Update(t.WakeTime)
				t.WakeTime += model.ControlPeriodMS
				return core.SF_RESCHEDULE
			},
		})
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	console = firmware.New(writeUSB, servos...)
	console.SetDebugWriter(func(s string) { println(s) })

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
				}
			}()

			now := clock.Millis()
			sched.Dispatch(now)

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				console.Receive(in)
				if consumed := len(data) - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}
			console.Poll(now)
		}()
		time.Sleep(100 * time.Microsecond)
	}
}

func mustServo(id uint8, in1, in2, en machine.Pin, pwm pwmPeripheral, enc core.EncoderDriver, bat core.BatteryDriver) *servo.Servo {
	m, err := newBridge(in1, in2, en, pwm)
	if err != nil {
		panic("motor " + core.Itoa(int64(id)) + ": " + err.Error())
	}
	s, err := servo.New(servo.Config{ID: id, Device: model.TechnicMAngular},
		servo.Drivers{Motor: m, Encoder: enc, Battery: bat, Clock: clock})
	if err != nil {
		panic("servo " + core.Itoa(int64(id)) + ": " + err.Error())
	}
	return s
}

func mustQuadrature(a, b machine.Pin) core.EncoderDriver {
	q, err := newQuadrature(a, b)
	if err != nil {
		panic("encoder: " + err.Error())
	}
	return q
}

func mustPIOCounter(a, b machine.Pin) core.EncoderDriver {
	p, err := newPIOCounter(rp2pio.PIO0, a, b)
	if err != nil {
		panic("pio encoder: " + err.Error())
	}
	return p
}

// usbReaderLoop moves bytes from USB into the input FIFO.
func usbReaderLoop() {
	for {
		for usbAvailable() > 0 {
			c, err := usbRead()
			if err != nil {
				msgerrors++
				break
			}
			if inputBuffer.Write([]byte{c}) == 0 {
				msgerrors++
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends a flushed frame batch, retrying partial writes.
func writeUSB(data []byte) {
	for tries := 0; len(data) > 0 && tries < 10; tries++ {
		n, err := usbWrite(data)
		if err != nil {
			msgerrors++
			return
		}
		data = data[n:]
	}
}
