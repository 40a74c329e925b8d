package sim

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/model"
)

func newTechnicM(t *testing.T) *Motor {
	t.Helper()
	m, err := NewDevice(model.TechnicMAngular)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMotorFreeSpeed(t *testing.T) {
	m := newTechnicM(t)
	m.SetBattery(9000)
	if err := m.SetDuty(core.DutyMax); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2000; i++ {
		m.Step()
	}
	// Back EMF and friction limit the no-load speed below 9 V / Ke.
	p := model.Lookup
	dev, _ := p(model.TechnicMAngular)
	ideal := 9 / dev.Params.BackEMF * 180000 / math.Pi
	if m.Speed() <= 0.8*ideal || m.Speed() >= ideal {
		t.Errorf("free speed %.0f, ideal %.0f", m.Speed(), ideal)
	}
	if m.Duty() != core.DutyMax {
		t.Errorf("Duty = %d", m.Duty())
	}
}

func TestMotorCoastAndBrakeStop(t *testing.T) {
	for _, stop := range []string{"coast", "brake"} {
		m := newTechnicM(t)
		m.SetDuty(5000)
		for i := 0; i < 1000; i++ {
			m.Step()
		}
		if stop == "coast" {
			m.Coast()
		} else {
			m.Brake()
		}
		for i := 0; i < 3000; i++ {
			m.Step()
		}
		if math.Abs(m.Speed()) > 100 {
			t.Errorf("%s: still moving at %.0f mdeg/s", stop, m.Speed())
		}
	}
}

func TestMotorEndstop(t *testing.T) {
	m := newTechnicM(t)
	m.SetEndstops(-1e12, 45000)
	m.SetDuty(6000)
	for i := 0; i < 2000; i++ {
		m.Step()
	}
	if m.Angle() < 45000 || m.Angle() > 55000 {
		t.Errorf("angle at endstop %.0f", m.Angle())
	}
	if math.Abs(m.Speed()) > 1000 {
		t.Errorf("speed at endstop %.0f", m.Speed())
	}
}

func TestMotorCount(t *testing.T) {
	m := newTechnicM(t)
	m.SetAngle(-500)
	if c, _ := m.Count(); c != -1 {
		t.Errorf("count at -0.5 deg = %d, want -1", c)
	}
	m.SetAngle(90999)
	if c, _ := m.Count(); c != 90 {
		t.Errorf("count at 90.999 deg = %d, want 90", c)
	}
	if err := m.SetCountsPerRotation(720); err != nil {
		t.Fatal(err)
	}
	if c, _ := m.Count(); c != 181 {
		t.Errorf("count at 720 cpr = %d, want 181", c)
	}
	m.InjectReadFaults(1)
	if _, err := m.Count(); !errors.Is(err, core.ErrSensorFault) {
		t.Errorf("expected sensor fault, got %v", err)
	}
	if _, err := m.Count(); err != nil {
		t.Errorf("fault persisted: %v", err)
	}
	if err := m.SetDuty(core.DutyMax + 1); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected invalid duty error, got %v", err)
	}
}

type counter struct{ calls []uint32 }

func (c *counter) Update(now uint32) { c.calls = append(c.calls, now) }

func TestRigRunsControlEveryPeriod(t *testing.T) {
	var r Rig
	r.Clock.Set(100)
	c := &counter{}
	r.Attach(c, 5)
	r.Run(21)
	want := []uint32{100, 105, 110, 115, 120}
	if len(c.calls) != len(want) {
		t.Fatalf("calls = %v", c.calls)
	}
	for i := range want {
		if c.calls[i] != want[i] {
			t.Errorf("call %d at %d, want %d", i, c.calls[i], want[i])
		}
	}
	if r.Now() != 121 {
		t.Errorf("Now = %d", r.Now())
	}
	r.Detach()
	r.Run(10)
	if len(c.calls) != len(want) {
		t.Error("detached task still running")
	}
	if !r.RunUntil(func() bool { return r.Now() >= 140 }, 100) {
		t.Error("RunUntil timed out")
	}
}
