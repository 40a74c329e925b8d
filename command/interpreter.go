package command

import (
	"math"

	"github.com/pkg/errors"

	"gobricks/core"
	"gobricks/servo"
)

// Interpreter runs command lines against a set of servos. The servo is
// selected with id=, which defaults to the first one.
type Interpreter struct {
	servos []*servo.Servo
}

func NewInterpreter(servos ...*servo.Servo) *Interpreter {
	return &Interpreter{servos: servos}
}

// Servos returns the servos commands are run against.
func (in *Interpreter) Servos() []*servo.Servo {
	return in.servos
}

// Execute parses and runs one line. The reply is "ok" for commands and a
// line of key=value pairs for queries. Errors wrap core.ErrInvalidArgument,
// core.ErrBusy or core.ErrNotSupported.
func (in *Interpreter) Execute(text string) (string, error) {
	l, err := ParseLine(text)
	if err != nil || l.IsEmpty() {
		return "", err
	}
	return in.Run(l)
}

// Run runs a parsed line.
func (in *Interpreter) Run(l Line) (string, error) {
	s, err := in.servo(l)
	if err != nil {
		return "", err
	}

	switch l.Verb {
	case "state":
		return formatState(s.State()), nil
	case "settings":
		return formatSettings(s.Settings()), nil
	case "reset_angle":
		if err := l.Only("id", "angle"); err != nil {
			return "", err
		}
		angle, err := l.Milli("angle", 0)
		if err != nil {
			return "", err
		}
		return "ok", s.ResetAngle(angle)
	case "limits":
		return "ok", in.limits(s, l)
	case "pid":
		return "ok", in.pid(s, l)
	case "stall":
		return "ok", in.stall(s, l)
	case "coast":
		return "ok", s.Stop(servo.ThenCoast)
	case "brake":
		return "ok", s.Stop(servo.ThenBrake)
	}

	c, err := buildCommand(l)
	if err != nil {
		return "", err
	}
	return "ok", s.Submit(c)
}

func (in *Interpreter) servo(l Line) (*servo.Servo, error) {
	id, err := l.Int("id", 0)
	if err != nil {
		return nil, err
	}
	for _, s := range in.servos {
		if int64(s.ID()) == id {
			return s, nil
		}
	}
	return nil, errors.Wrapf(core.ErrInvalidArgument, "no servo with id %d", id)
}

// buildCommand converts a motion line to a servo command.
func buildCommand(l Line) (servo.Command, error) {
	kind, err := servo.ParseKind(l.Verb)
	if err != nil {
		return servo.Command{}, err
	}
	c := servo.Command{Kind: kind}

	var need, allowed []string
	switch kind {
	case servo.KindRun:
		need = []string{"speed"}
	case servo.KindRunTime:
		need, allowed = []string{"speed", "time"}, []string{"then"}
	case servo.KindRunAngle:
		need, allowed = []string{"speed", "angle"}, []string{"then"}
	case servo.KindRunTarget:
		need, allowed = []string{"speed", "target"}, []string{"then"}
	case servo.KindRunUntilStalled:
		need, allowed = []string{"speed"}, []string{"then"}
	case servo.KindTrackTarget:
		need = []string{"target"}
	case servo.KindStop:
		allowed = []string{"then"}
	case servo.KindDuty:
		need = []string{"duty"}
	}
	if err := l.Require(need...); err != nil {
		return c, err
	}
	if err := l.Only(append(append([]string{"id"}, need...), allowed...)...); err != nil {
		return c, err
	}

	if c.Speed, err = milli32(l, "speed"); err != nil {
		return c, err
	}
	if c.Angle, err = l.Milli("angle", 0); err != nil {
		return c, err
	}
	if kind == servo.KindRunTarget || kind == servo.KindTrackTarget {
		if c.Angle, err = l.Milli("target", 0); err != nil {
			return c, err
		}
	}
	t, err := l.Int("time", 0)
	if err != nil {
		return c, err
	}
	if t < 0 || t > math.MaxUint32 {
		return c, errors.Wrapf(core.ErrInvalidArgument, "time %d", t)
	}
	c.Duration = uint32(t)

	// Duty is given in percent.
	d, err := l.Milli("duty", 0)
	if err != nil {
		return c, err
	}
	if d > 100000 || d < -100000 {
		return c, errors.Wrapf(core.ErrInvalidArgument, "duty %s%%", formatMilli(d))
	}
	c.Duty = int32(d * core.DutyMax / 100000)

	then, _ := l.Lookup("then")
	if kind == servo.KindStop && then == "" {
		then = "coast"
	}
	if c.Then, err = servo.ParseThen(then); err != nil {
		return c, err
	}
	return c, nil
}

// milli32 returns an int32 thousandths value of key, zero if absent.
func milli32(l Line, key string) (int32, error) {
	v, err := l.Milli(key, 0)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, errors.Wrapf(core.ErrInvalidArgument, "%s out of range", key)
	}
	return int32(v), nil
}

// int32Arg returns the whole number value of key, or def.
func int32Arg(l Line, key string, def int32) (int32, error) {
	v, err := l.Int(key, int64(def))
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, errors.Wrapf(core.ErrInvalidArgument, "%s out of range", key)
	}
	return int32(v), nil
}

// limits changes the named limits and keeps the rest. Torque is in mNm and
// duty in percent.
func (in *Interpreter) limits(s *servo.Servo, l Line) error {
	if err := l.Only("id", "speed", "accel", "decel", "duty", "torque"); err != nil {
		return err
	}
	lim := s.Settings().Limits
	var err error
	if lim.Speed, err = milliOr(l, "speed", lim.Speed); err != nil {
		return err
	}
	if lim.Acceleration, err = milliOr(l, "accel", lim.Acceleration); err != nil {
		return err
	}
	if lim.Deceleration, err = milliOr(l, "decel", lim.Deceleration); err != nil {
		return err
	}
	if lim.Torque, err = milliOr(l, "torque", lim.Torque); err != nil {
		return err
	}
	if _, ok := l.Lookup("duty"); ok {
		pct, err := int32Arg(l, "duty", 0)
		if err != nil {
			return err
		}
		if pct < 0 || pct > 100 {
			return errors.Wrapf(core.ErrInvalidArgument, "duty limit %d%%", pct)
		}
		lim.Duty = pct * core.DutyMax / 100
	}
	return s.ConfigureLimits(lim)
}

func (in *Interpreter) pid(s *servo.Servo, l Line) error {
	if err := l.Only("id", "kp", "ki", "kd", "rate", "pos_tol", "speed_tol", "dwell"); err != nil {
		return err
	}
	set := s.Settings()
	p, tol := set.PID, set.Tolerances
	var err error
	if p.Kp, err = int32Arg(l, "kp", p.Kp); err != nil {
		return err
	}
	if p.Ki, err = int32Arg(l, "ki", p.Ki); err != nil {
		return err
	}
	if p.Kd, err = int32Arg(l, "kd", p.Kd); err != nil {
		return err
	}
	if p.IntegralRate, err = milliOr(l, "rate", p.IntegralRate); err != nil {
		return err
	}
	if tol.Position, err = milliOr(l, "pos_tol", tol.Position); err != nil {
		return err
	}
	if tol.Speed, err = milliOr(l, "speed_tol", tol.Speed); err != nil {
		return err
	}
	dwell, err := int32Arg(l, "dwell", int32(tol.Dwell))
	if err != nil {
		return err
	}
	if dwell < 0 {
		return errors.Wrapf(core.ErrInvalidArgument, "dwell %d", dwell)
	}
	tol.Dwell = uint32(dwell)
	return s.ConfigurePID(p, tol)
}

func (in *Interpreter) stall(s *servo.Servo, l Line) error {
	if err := l.Only("id", "speed", "time"); err != nil {
		return err
	}
	st := s.Settings().Stall
	var err error
	if st.Speed, err = milliOr(l, "speed", st.Speed); err != nil {
		return err
	}
	t, err := int32Arg(l, "time", int32(st.Time))
	if err != nil {
		return err
	}
	if t < 0 {
		return errors.Wrapf(core.ErrInvalidArgument, "stall time %d", t)
	}
	st.Time = uint32(t)
	return s.ConfigureStall(st)
}

// milliOr returns the thousandths value of key, or def if absent.
func milliOr(l Line, key string, def int32) (int32, error) {
	if _, ok := l.Lookup(key); !ok {
		return def, nil
	}
	return milli32(l, key)
}
