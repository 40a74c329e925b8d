package sim

import "gobricks/core"

// Updater is a periodic control task, typically a servo.
type Updater interface {
	Update(now uint32)
}

// Rig couples control tasks to simulated motors on a shared clock. Each
// millisecond it first dispatches the control timers that are due and then
// steps every motor.
type Rig struct {
	Clock core.ManualClock
	Sched core.Scheduler

	motors []*Motor
	timers []*core.Timer
}

// AddMotor registers a motor to be stepped.
func (r *Rig) AddMotor(m *Motor) {
	r.motors = append(r.motors, m)
}

// Attach runs u every period ms, starting at the current time.
func (r *Rig) Attach(u Updater, period uint32) *core.Timer {
	t := &core.Timer{
		WakeTime: r.Clock.Millis(),
		Handler: func(t *core.Timer) uint8 {
			u.Update(t.WakeTime)
			t.WakeTime += period
			return core.SF_RESCHEDULE
		},
	}
	r.timers = append(r.timers, t)
	r.Sched.Add(t)
	return t
}

// Detach stops all control tasks.
func (r *Rig) Detach() {
	for _, t := range r.timers {
		r.Sched.Remove(t)
	}
	r.timers = nil
}

// Now returns the simulated time in ms.
func (r *Rig) Now() uint32 {
	return r.Clock.Millis()
}

// Tick advances the simulation by one millisecond.
func (r *Rig) Tick() {
	r.Sched.Dispatch(r.Clock.Millis())
	for _, m := range r.motors {
		m.Step()
	}
	r.Clock.Advance(StepMS)
}

// Run advances the simulation by ms milliseconds.
func (r *Rig) Run(ms uint32) {
	for i := uint32(0); i < ms; i++ {
		r.Tick()
	}
}

// RunUntil advances the simulation until done returns true or timeout ms
// have passed. It reports whether done returned true.
func (r *Rig) RunUntil(done func() bool, timeout uint32) bool {
	for i := uint32(0); i < timeout; i++ {
		if done() {
			return true
		}
		r.Tick()
	}
	return done()
}
