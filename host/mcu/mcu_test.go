package mcu

import (
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gobricks/core"
	"gobricks/firmware"
	"gobricks/model"
	"gobricks/protocol"
	"gobricks/servo"
	"gobricks/sim"
)

// board runs a firmware console for one simulated motor on conn.
func board(t *testing.T, conn net.Conn) {
	t.Helper()
	m, err := sim.NewDevice(model.TechnicMAngular)
	if err != nil {
		t.Fatal(err)
	}
	clock := &core.ManualClock{}
	srv, err := servo.New(servo.Config{ID: 3, Device: model.TechnicMAngular},
		servo.Drivers{Motor: m, Encoder: m, Battery: m, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	console := firmware.New(func(b []byte) { conn.Write(b) }, srv)
	go func() {
		in := protocol.NewFifoBuffer(1024)
		buf := make([]byte, 64)
		now := uint32(0)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				in.Write(buf[:n])
				console.Receive(in)
				now += firmware.DefaultStatusPeriod
				console.Poll(now)
			}
			if err != nil {
				return
			}
		}
	}()
}

func connect(t *testing.T) *MCU {
	t.Helper()
	hostEnd, boardEnd := net.Pipe()
	board(t, boardEnd)
	m := New(hostEnd, zerolog.Nop())
	t.Cleanup(func() {
		m.Close()
		boardEnd.Close()
	})
	return m
}

func TestIdentify(t *testing.T) {
	m := connect(t)
	info, err := m.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != protocol.Version || len(info.Servos) != 1 {
		t.Fatalf("info %+v", info)
	}
	if s := info.Servos[0]; s.ID != 3 || s.Device != "technic_m_angular" {
		t.Errorf("servo %+v", s)
	}
}

func TestExecute(t *testing.T) {
	m := connect(t)
	reply, err := m.Execute("run id=3 speed=100")
	if err != nil || reply != "ok" {
		t.Fatalf("run: %q %v", reply, err)
	}
	if _, err := m.Execute("pid id=3 kp=1"); !errors.Is(err, core.ErrBusy) {
		t.Errorf("pid while running: %v", err)
	}
	if _, err := m.Execute("run id=0 speed=100"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("unknown servo: %v", err)
	}
	if _, err := m.Execute("teleport"); !errors.Is(err, core.ErrNotSupported) {
		t.Errorf("unknown verb: %v", err)
	}
}

func TestStatusAndEvents(t *testing.T) {
	m := connect(t)
	if _, err := m.Execute("run id=3 speed=100"); err != nil {
		t.Fatal(err)
	}
	// The next request triggers another poll on the board.
	if _, err := m.Execute("state id=3"); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(2 * time.Second)
	var gotStatus, gotEvent bool
	for !gotStatus || !gotEvent {
		select {
		case st := <-m.Status():
			if st.ID != 3 {
				t.Errorf("status for servo %d", st.ID)
			}
			gotStatus = true
		case e := <-m.Events():
			if e.Kind != core.EvtCommand || e.ID != 3 {
				t.Errorf("event %+v", e)
			}
			gotEvent = true
		case <-timeout:
			t.Fatalf("status %v event %v", gotStatus, gotEvent)
		}
	}
}
