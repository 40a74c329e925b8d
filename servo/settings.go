package servo

import (
	"github.com/pkg/errors"

	"gobricks/control"
	"gobricks/core"
	"gobricks/observer"
)

// The setters below take output shaft units and are only accepted while the
// servo is idle, coasting or braking. A rejected setting changes nothing.

func (s *Servo) checkPassive(what string) error {
	if !s.mode.passive() {
		s.events.Record(core.EvtRejected, s.id, s.drv.Clock.Millis(), int64(s.mode), 0)
		return errors.Wrapf(core.ErrBusy, "%s: servo is in %s", what, s.mode)
	}
	return nil
}

// motorSetting converts an output shaft setting to the motor frame. A value
// equal to what Settings reports for stored keeps stored, so reading the
// settings and writing them back changes nothing.
func (s *Servo) motorSetting(v, stored int32) int32 {
	if v == s.geo.toUser32(stored) {
		return stored
	}
	return s.geo.toMotor32(v)
}

func (s *Servo) rejected(err error) error {
	s.events.Record(core.EvtRejected, s.id, s.drv.Clock.Millis(), int64(s.mode), 0)
	return err
}

// ConfigureLimits sets the speed, acceleration, duty and torque limits.
func (s *Servo) ConfigureLimits(l control.Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPassive("limits"); err != nil {
		return err
	}
	l.Speed = s.motorSetting(l.Speed, s.settings.Limits.Speed)
	l.Acceleration = s.motorSetting(l.Acceleration, s.settings.Limits.Acceleration)
	l.Deceleration = s.motorSetting(l.Deceleration, s.settings.Limits.Deceleration)
	if err := l.Validate(); err != nil {
		return s.rejected(err)
	}
	s.settings.Limits = l
	return nil
}

// ConfigurePID sets the feedback gains and the completion tolerances.
func (s *Servo) ConfigurePID(p control.PID, tol control.Tolerances) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPassive("pid"); err != nil {
		return err
	}
	p.IntegralRate = s.motorSetting(p.IntegralRate, s.settings.PID.IntegralRate)
	tol.Position = s.motorSetting(tol.Position, s.settings.Tolerances.Position)
	tol.Speed = s.motorSetting(tol.Speed, s.settings.Tolerances.Speed)
	if err := p.Validate(); err != nil {
		return s.rejected(err)
	}
	if err := tol.Validate(); err != nil {
		return s.rejected(err)
	}
	s.settings.PID = p
	s.settings.Tolerances = tol
	return nil
}

// ConfigureStall sets the stall speed threshold and time.
func (s *Servo) ConfigureStall(st control.Stall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPassive("stall"); err != nil {
		return err
	}
	st.Speed = s.motorSetting(st.Speed, s.settings.Stall.Speed)
	if err := st.Validate(); err != nil {
		return s.rejected(err)
	}
	s.settings.Stall = st
	return nil
}

// ConfigureObserver sets the observer feedback gains.
func (s *Servo) ConfigureObserver(g observer.Gains) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPassive("observer"); err != nil {
		return err
	}
	if err := s.obs.SetGains(g); err != nil {
		return s.rejected(err)
	}
	return nil
}

// Settings returns the control settings in output shaft units.
func (s *Servo) Settings() control.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.settings
	c.Limits.Speed = s.geo.toUser32(c.Limits.Speed)
	c.Limits.Acceleration = s.geo.toUser32(c.Limits.Acceleration)
	c.Limits.Deceleration = s.geo.toUser32(c.Limits.Deceleration)
	c.PID.IntegralRate = s.geo.toUser32(c.PID.IntegralRate)
	c.Tolerances.Position = s.geo.toUser32(c.Tolerances.Position)
	c.Tolerances.Speed = s.geo.toUser32(c.Tolerances.Speed)
	c.Stall.Speed = s.geo.toUser32(c.Stall.Speed)
	return c
}

func (s *Servo) ObserverGains() observer.Gains {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.Gains()
}
