package command

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/model"
	"gobricks/servo"
	"gobricks/sim"
)

func newRig(t *testing.T) (*sim.Rig, *Interpreter, *servo.Servo) {
	t.Helper()
	rig := &sim.Rig{}
	var servos []*servo.Servo
	for id := uint8(0); id < 2; id++ {
		m, err := sim.NewDevice(model.TechnicMAngular)
		if err != nil {
			t.Fatal(err)
		}
		rig.AddMotor(m)
		s, err := servo.New(servo.Config{ID: id, Device: model.TechnicMAngular},
			servo.Drivers{Motor: m, Encoder: m, Battery: m, Clock: &rig.Clock})
		if err != nil {
			t.Fatal(err)
		}
		rig.Attach(s, model.ControlPeriodMS)
		servos = append(servos, s)
	}
	rig.Run(20)
	return rig, NewInterpreter(servos...), servos[0]
}

func mustExecute(t *testing.T, in *Interpreter, line string) string {
	t.Helper()
	reply, err := in.Execute(line)
	if err != nil {
		t.Fatalf("%q: %v", line, err)
	}
	return reply
}

func TestRunTargetLine(t *testing.T) {
	rig, in, s := newRig(t)
	if reply := mustExecute(t, in, "run_target speed=500 target=90 then=hold"); reply != "ok" {
		t.Errorf("reply %q", reply)
	}
	if s.Mode() != servo.ModeRunTarget {
		t.Fatalf("mode %v", s.Mode())
	}
	if !rig.RunUntil(s.IsDone, 3000) {
		t.Fatal("run_target did not complete")
	}
	if d := s.Angle() - 90000; d > 10000 || d < -10000 {
		t.Errorf("angle %d", s.Angle())
	}
	if s.Mode() != servo.ModeHold {
		t.Errorf("mode after completion %v", s.Mode())
	}
	state := mustExecute(t, in, "state")
	if !strings.Contains(state, "mode=hold") || !strings.Contains(state, "done=1") {
		t.Errorf("state %q", state)
	}
}

func TestServoSelection(t *testing.T) {
	_, in, _ := newRig(t)
	mustExecute(t, in, "run id=1 speed=100")
	if m := in.Servos()[1].Mode(); m != servo.ModeRun {
		t.Errorf("servo 1 mode %v", m)
	}
	if m := in.Servos()[0].Mode(); m != servo.ModeIdle {
		t.Errorf("servo 0 mode %v", m)
	}
	if _, err := in.Execute("run id=5 speed=100"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("unknown servo: %v", err)
	}
}

func TestLineErrors(t *testing.T) {
	_, in, s := newRig(t)
	testCases := []struct {
		line string
		want error
	}{
		{"run_target speed=500", core.ErrInvalidArgument},
		{"run speed=500 target=3", core.ErrInvalidArgument},
		{"run_angle speed=500 angle=90 then=float", core.ErrInvalidArgument},
		{"run speed=100000", core.ErrInvalidArgument},
		{"dc duty=101", core.ErrInvalidArgument},
		{"jump height=3", core.ErrNotSupported},
	}
	for _, tc := range testCases {
		if _, err := in.Execute(tc.line); !errors.Is(err, tc.want) {
			t.Errorf("%q: error %v, expected %v", tc.line, err, tc.want)
		}
	}
	if s.Mode() != servo.ModeIdle {
		t.Errorf("rejected lines changed the mode to %v", s.Mode())
	}
}

func TestStopLines(t *testing.T) {
	rig, in, s := newRig(t)
	mustExecute(t, in, "run speed=300")
	rig.Run(200)
	mustExecute(t, in, "brake")
	if s.Actuation() != servo.Braking {
		t.Errorf("actuation after brake %v", s.Actuation())
	}
	mustExecute(t, in, "run speed=300")
	rig.Run(200)
	mustExecute(t, in, "stop")
	if s.Mode() != servo.ModeCoast {
		t.Errorf("plain stop gave mode %v", s.Mode())
	}
	mustExecute(t, in, "hold")
	if s.Mode() != servo.ModeHold {
		t.Errorf("hold gave mode %v", s.Mode())
	}
	mustExecute(t, in, "stop then=coast")
	if s.Actuation() != servo.Coasting {
		t.Errorf("actuation after stop %v", s.Actuation())
	}
}

func TestDcLine(t *testing.T) {
	_, in, s := newRig(t)
	mustExecute(t, in, "dc duty=-50")
	if st := s.State(); st.Mode != servo.ModeDuty || st.Duty != -5000 {
		t.Errorf("mode %v duty %d", st.Mode, st.Duty)
	}
}

func TestSettingsLines(t *testing.T) {
	rig, in, s := newRig(t)
	mustExecute(t, in, "limits speed=500 accel=1000 duty=80 torque=150")
	l := s.Settings().Limits
	if l.Speed != 500000 || l.Acceleration != 1000000 || l.Duty != 8000 || l.Torque != 150000 {
		t.Errorf("limits %+v", l)
	}
	mustExecute(t, in, "pid kp=12000 pos_tol=5 dwell=20")
	set := s.Settings()
	if set.PID.Kp != 12000 || set.Tolerances.Position != 5000 || set.Tolerances.Dwell != 20 {
		t.Errorf("pid %+v %+v", set.PID, set.Tolerances)
	}
	mustExecute(t, in, "stall speed=10 time=300")
	if st := s.Settings().Stall; st.Speed != 10000 || st.Time != 300 {
		t.Errorf("stall %+v", st)
	}
	reply := mustExecute(t, in, "settings")
	if !strings.Contains(reply, "speed=500.000") || !strings.Contains(reply, "duty=80") {
		t.Errorf("settings %q", reply)
	}

	mustExecute(t, in, "run speed=100")
	rig.Run(20)
	if _, err := in.Execute("pid kp=1"); !errors.Is(err, core.ErrBusy) {
		t.Errorf("pid while running: %v", err)
	}
	if _, err := in.Execute("limits duty=150"); err == nil {
		t.Error("duty limit above 100% accepted")
	}
}

func TestResetAngleLine(t *testing.T) {
	_, in, s := newRig(t)
	mustExecute(t, in, "reset_angle angle=45")
	if a := s.Angle(); a < 44000 || a > 46000 {
		t.Errorf("angle after reset %d", a)
	}
	if _, err := in.Execute("reset_angle angle=1 speed=3"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("extra argument: %v", err)
	}
}
