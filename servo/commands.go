package servo

import (
	"github.com/pkg/errors"

	"gobricks/control"
	"gobricks/core"
	"gobricks/fixmath"
	"gobricks/trajectory"
)

// Kind identifies a command.
type Kind uint8

const (
	KindRun Kind = iota
	KindRunTime
	KindRunAngle
	KindRunTarget
	KindRunUntilStalled
	KindTrackTarget
	KindHold
	KindStop
	KindDuty
)

var kindNames = [...]string{
	KindRun:             "run",
	KindRunTime:         "run_time",
	KindRunAngle:        "run_angle",
	KindRunTarget:       "run_target",
	KindRunUntilStalled: "run_until_stalled",
	KindTrackTarget:     "track_target",
	KindHold:            "hold",
	KindStop:            "stop",
	KindDuty:            "dc",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind looks a command up by name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, errors.Wrapf(core.ErrNotSupported, "command %q", name)
}

// Command is one request to the servo. Which fields are used depends on
// Kind; angles and speeds are at the output shaft.
type Command struct {
	Kind     Kind
	Speed    int32  // mdeg/s
	Angle    int64  // mdeg, target or relative angle
	Duration uint32 // ms
	Duty     int32  // ±core.DutyMax
	Then     Then
}

// Submit validates c and, if it is acceptable, supersedes whatever the servo
// was doing. A rejected command changes nothing.
func (s *Servo) Submit(c Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.drv.Clock.Millis()
	if err := s.submit(c, now); err != nil {
		s.events.Record(core.EvtRejected, s.id, now, int64(c.Kind), 0)
		return err
	}
	s.events.Record(core.EvtCommand, s.id, now, int64(s.mode), int32(c.Then))
	return nil
}

// Run runs at speed until told otherwise.
func (s *Servo) Run(speed int32) error {
	return s.Submit(Command{Kind: KindRun, Speed: speed})
}

// RunTime runs at speed and comes to a standstill duration ms from now.
func (s *Servo) RunTime(speed int32, duration uint32, then Then) error {
	return s.Submit(Command{Kind: KindRunTime, Speed: speed, Duration: duration, Then: then})
}

// RunAngle turns by angle. The direction is the product of the signs of
// speed and angle.
func (s *Servo) RunAngle(speed int32, angle int64, then Then) error {
	return s.Submit(Command{Kind: KindRunAngle, Speed: speed, Angle: angle, Then: then})
}

// RunTarget moves to the absolute angle target.
func (s *Servo) RunTarget(speed int32, target int64, then Then) error {
	return s.Submit(Command{Kind: KindRunTarget, Speed: speed, Angle: target, Then: then})
}

// RunUntilStalled runs at speed until the motor stalls.
func (s *Servo) RunUntilStalled(speed int32, then Then) error {
	return s.Submit(Command{Kind: KindRunUntilStalled, Speed: speed, Then: then})
}

// TrackTarget holds target without a planned trajectory. Repeated calls
// move the target and keep the controller state.
func (s *Servo) TrackTarget(target int64) error {
	return s.Submit(Command{Kind: KindTrackTarget, Angle: target})
}

// Hold stops actively and keeps the current angle.
func (s *Servo) Hold() error {
	return s.Submit(Command{Kind: KindHold})
}

// Stop ends any motion with the given policy.
func (s *Servo) Stop(then Then) error {
	return s.Submit(Command{Kind: KindStop, Then: then})
}

// Dc drives the motor open loop at duty.
func (s *Servo) Dc(duty int32) error {
	return s.Submit(Command{Kind: KindDuty, Duty: duty})
}

// motorSpeed converts a user speed and checks it against the speed limit.
func (s *Servo) motorSpeed(speed int32) (int32, error) {
	w := s.geo.toMotor(int64(speed))
	if lim := int64(s.settings.Limits.Speed); w > lim || w < -lim {
		return 0, errors.Wrapf(core.ErrInvalidArgument, "speed %d exceeds limit %d", speed, s.geo.toUser32(s.settings.Limits.Speed))
	}
	return int32(w), nil
}

func (s *Servo) submit(c Command, now uint32) error {
	if c.Then > ThenHold {
		return errors.Wrapf(core.ErrInvalidArgument, "stop policy %d", c.Then)
	}
	est := s.obs.State()

	switch c.Kind {
	case KindStop:
		s.stop(c.Then, est.Angle, now)
		return nil
	case KindHold:
		s.stop(ThenHold, est.Angle, now)
		return nil
	case KindDuty:
		if c.Duty > core.DutyMax || c.Duty < -core.DutyMax {
			return errors.Wrapf(core.ErrInvalidArgument, "duty %d", c.Duty)
		}
		s.supersede()
		s.ctl.Stop()
		s.mode = ModeDuty
		s.actuation = Actuating
		s.setDuty(fixmath.Clamp(c.Duty, s.settings.Limits.Duty))
		s.finish()
		return nil
	case KindTrackTarget:
		target := s.geo.toMotor(c.Angle)
		if d := target - est.Angle; d > trajectory.MaxDistance || d < -trajectory.MaxDistance {
			return errors.Wrapf(core.ErrInvalidArgument, "target %d", c.Angle)
		}
		if s.mode == ModeTrack && s.ctl.Active() {
			s.ctl.Retarget(trajectory.None(now, target))
			s.done = false
			return nil
		}
		s.supersede()
		s.ctl.Start(trajectory.None(now, target), control.ModePosition, now)
		s.mode = ModeTrack
		s.actuation = Actuating
		s.finish()
		s.done = false
		return nil
	}

	speed, err := s.motorSpeed(c.Speed)
	if err != nil {
		return err
	}
	start := trajectory.Start{Time: now, Angle: est.Angle, Speed: est.Speed}
	lim := s.settings.TrajectoryLimits()

	var (
		tr    trajectory.Trajectory
		cmode = control.ModeTime
		mode  Mode
	)
	switch c.Kind {
	case KindRun:
		mode = ModeRun
		tr, err = trajectory.PlanForever(start, speed, lim)
	case KindRunTime:
		mode = ModeRunTime
		tr, err = trajectory.PlanTime(start, speed, c.Duration, lim)
	case KindRunUntilStalled:
		mode = ModeRunUntilStalled
		tr, err = trajectory.PlanForever(start, speed, lim)
	case KindRunAngle:
		mode, cmode = ModeRunAngle, control.ModePosition
		dist := fixmath.Abs64(s.geo.toMotor(c.Angle))
		if fixmath.Sign(int64(c.Speed))*fixmath.Sign(c.Angle) < 0 {
			dist = -dist
		}
		tr, err = trajectory.PlanAngle(start, est.Angle+dist, speed, lim)
	case KindRunTarget:
		mode, cmode = ModeRunTarget, control.ModePosition
		tr, err = trajectory.PlanAngle(start, s.geo.toMotor(c.Angle), speed, lim)
	default:
		return errors.Wrapf(core.ErrNotSupported, "command %d", c.Kind)
	}
	if err != nil {
		return err
	}

	s.supersede()
	s.ctl.Start(tr, cmode, now)
	s.mode = mode
	s.then = c.Then
	s.actuation = Actuating
	s.stallSeen = false
	s.done = false
	s.pending = true
	s.doneCh = make(chan struct{})
	return nil
}

// supersede releases waiters of a command that is being replaced.
func (s *Servo) supersede() {
	if s.pending {
		close(s.doneCh)
		s.pending = false
	}
}

// finish marks the current command complete.
func (s *Servo) finish() {
	s.supersede()
	s.done = true
	s.doneCh = closedCh
}

// stop applies a stop policy. angle is where to hold.
func (s *Servo) stop(then Then, angle int64, now uint32) {
	switch then {
	case ThenCoast:
		s.coast()
		s.mode = ModeCoast
	case ThenBrake:
		s.brake(now)
	case ThenHold:
		s.ctl.Start(trajectory.None(now, angle), control.ModePosition, now)
		s.mode = ModeHold
		s.actuation = Holding
	}
	s.then = then
	s.finish()
}

func (s *Servo) coast() {
	s.ctl.Stop()
	s.actuation = Coasting
	s.duty = 0
	s.driven(s.drv.Motor.Coast())
}

func (s *Servo) brake(now uint32) {
	s.ctl.Stop()
	s.mode = ModeBrake
	s.actuation = Braking
	s.brakeSince = now
	s.duty = 0
	s.voltage = 0
	s.driven(s.drv.Motor.Brake())
}

// ResetAngle redefines the current output angle without moving. A holding
// servo keeps holding the same physical position; a moving one coasts.
func (s *Servo) ResetAngle(angle int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.drv.Clock.Millis()
	target := s.geo.toMotor(angle)
	if target > trajectory.MaxDistance || target < -trajectory.MaxDistance {
		s.events.Record(core.EvtRejected, s.id, now, angle, 0)
		return errors.Wrapf(core.ErrInvalidArgument, "angle %d", angle)
	}
	delta := target - s.obs.State().Angle
	s.offset += delta
	s.measured += delta
	s.obs.Shift(delta)

	switch {
	case s.mode == ModeHold:
		tr := s.ctl.Trajectory()
		s.ctl.Start(trajectory.None(now, tr.EndAngle()+delta), control.ModePosition, now)
	case s.mode.passive() || s.mode == ModeDuty:
	default:
		s.coast()
		s.mode = ModeCoast
		s.finish()
	}
	s.events.Record(core.EvtReset, s.id, now, angle, 0)
	return nil
}
