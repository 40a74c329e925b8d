package servo

import (
	"gobricks/control"
	"gobricks/core"
	"gobricks/fixmath"
	"gobricks/model"
	"gobricks/observer"
	"gobricks/telemetry"
	"gobricks/trajectory"
)

// Update runs one control period: read the sensors, update the estimate,
// run the controller and drive the motor. It never blocks on anything but
// the servo lock and never allocates.
func (s *Servo) Update(now uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticked {
		if late := fixmath.TimeDiff(now, s.lastTick) - model.ControlPeriodMS; late > lateTolerance {
			s.events.Record(core.EvtLateTick, s.id, now, 0, late)
		}
	}
	s.ticked = true
	s.lastTick = now

	s.readSensors(now)
	est := s.obs.Update(s.measured, s.voltage)

	s.out = control.Output{}
	switch s.actuation {
	case Coasting:
		s.voltage = s.obs.BackEMFVoltage()
	case Braking:
		s.voltage = 0
		if now-s.brakeSince >= s.brakeTime {
			s.coast()
			s.mode = ModeCoast
			s.voltage = s.obs.BackEMFVoltage()
			s.events.Record(core.EvtBrakeDone, s.id, now, est.Angle, 0)
		}
	case Actuating, Holding:
		if s.mode == ModeDuty {
			s.voltage = s.dutyVoltage(s.duty)
			break
		}
		s.out = s.ctl.Update(now, est.Angle, est.Speed)
		s.actuate(s.out.Torque)
		s.checkStall(now, est)
		s.checkDone(now, est)
	}

	if s.log != nil {
		s.log.Add(s.sample(now, est))
	}
}

func (s *Servo) readSensors(now uint32) {
	c, err := s.drv.Encoder.Count()
	if err != nil {
		s.faults++
		if !s.faulted {
			s.faulted = true
			s.events.Record(core.EvtSensorFault, s.id, now, int64(s.faults), 0)
		}
	} else {
		s.faulted = false
		s.counts += int64(c - s.count)
		s.count = c
		s.measured = s.geo.countsToAngle(s.counts) + s.offset
	}
	if v, err := s.drv.Battery.Voltage(); err == nil && v > 0 {
		s.battery = v
	}
}

// actuate converts a torque to a duty cycle at the present battery voltage.
func (s *Servo) actuate(torque int32) {
	v := fixmath.Clamp(s.dev.Model.TorqueToVoltage(torque), s.dev.MaxVoltage)
	duty := fixmath.Sat32(int64(v) * core.DutyMax / int64(s.battery))
	s.setDuty(fixmath.Clamp(duty, s.settings.Limits.Duty))
}

func (s *Servo) setDuty(duty int32) {
	s.duty = duty
	s.voltage = s.dutyVoltage(duty)
	s.driven(s.drv.Motor.SetDuty(int32(s.geo.sign) * duty))
}

// driven counts failed motor writes and records the first of a burst.
func (s *Servo) driven(err error) {
	if err == nil {
		s.dfaulted = false
		return
	}
	s.faults++
	if !s.dfaulted {
		s.dfaulted = true
		s.events.Record(core.EvtDriverFault, s.id, s.drv.Clock.Millis(), int64(s.faults), 0)
	}
}

func (s *Servo) dutyVoltage(duty int32) int32 {
	return int32(int64(duty) * int64(s.battery) / core.DutyMax)
}

func (s *Servo) checkStall(now uint32, est observer.State) {
	stalled := s.ctl.Stalled()
	if stalled && !s.stallSeen {
		s.events.Record(core.EvtStall, s.id, now, est.Angle, 0)
	}
	s.stallSeen = stalled
}

// checkDone completes the command when its end condition holds.
func (s *Servo) checkDone(now uint32, est observer.State) {
	switch s.mode {
	case ModeRunAngle, ModeRunTarget:
		if !s.ctl.OnTarget() {
			return
		}
		s.events.Record(core.EvtOnTarget, s.id, now, est.Angle, 0)
		if s.then == ThenHold {
			// Keep the integral but stop following the finished trajectory.
			tr := s.ctl.Trajectory()
			end := tr.EndAngle()
			s.ctl.Retarget(trajectory.None(now, end))
			s.mode = ModeHold
			s.actuation = Holding
			s.finish()
			return
		}
		s.stop(s.then, est.Angle, now)
	case ModeRunTime:
		if s.ctl.TrajectoryDone(now) {
			s.stop(s.then, est.Angle, now)
		}
	case ModeRunUntilStalled:
		if s.ctl.Stalled() {
			s.stallAngle = est.Angle
			s.stop(s.then, est.Angle, now)
		}
	case ModeTrack:
		s.done = s.ctl.OnTarget()
	}
}

func (s *Servo) sample(now uint32, est observer.State) telemetry.Sample {
	smp := telemetry.Sample{
		Time:         now,
		Count:        s.count,
		Angle:        s.measured,
		EstAngle:     est.Angle,
		EstSpeed:     est.Speed,
		EstCurrent:   est.Current,
		RefAngle:     s.out.Reference.Angle,
		RefSpeed:     s.out.Reference.Speed,
		RefAccel:     s.out.Reference.Acceleration,
		Torque:       s.out.Torque,
		Proportional: s.out.Proportional,
		Integral:     s.out.Integral,
		Derivative:   s.out.Derivative,
		Feedforward:  s.out.Feedforward,
		Voltage:      s.voltage,
		Duty:         s.duty,
		Actuation:    uint8(s.actuation),
	}
	if !s.ctl.Active() {
		smp.RefAngle = est.Angle
	}
	if s.ctl.Active() && s.ctl.Stalled() {
		smp.Flags |= telemetry.FlagStalled
	}
	if s.ctl.Active() && s.ctl.OnTarget() {
		smp.Flags |= telemetry.FlagOnTarget
	}
	if s.out.Saturated {
		smp.Flags |= telemetry.FlagSaturated
	}
	if s.faulted {
		smp.Flags |= telemetry.FlagSensorFault
	}
	if s.done {
		smp.Flags |= telemetry.FlagDone
	}
	return smp
}
