// Package servo runs the position and speed control of one motor.
//
// A Servo owns an observer, a trajectory controller and the actuation state
// machine of one motor. Commands plan a trajectory from the current
// estimated state and hand it to the controller; Update runs one control
// period and must be called every model.ControlPeriod, typically from a
// scheduler timer.
//
// User facing angles and speeds are millidegrees at the output shaft, after
// direction and gearing. Internally everything is in the motor frame.
package servo

import (
	"sync"

	"github.com/pkg/errors"

	"gobricks/control"
	"gobricks/core"
	"gobricks/model"
	"gobricks/observer"
	"gobricks/telemetry"
)

// DefaultBrakeTime is how long the passive brake is applied before the
// motor is left coasting.
const DefaultBrakeTime = 200

// defaultBattery is assumed until the first good battery reading.
const defaultBattery = 7200

// lateTolerance is how much later than one period a tick may run before it
// is reported.
const lateTolerance = 2

// Actuation is what is applied to the motor.
type Actuation uint8

const (
	Coasting  Actuation = iota // terminals open
	Actuating                  // driven by the controller or a fixed duty
	Braking                    // terminals shorted
	Holding                    // controller holding a fixed angle
)

func (a Actuation) String() string {
	switch a {
	case Coasting:
		return "coasting"
	case Actuating:
		return "actuating"
	case Braking:
		return "braking"
	case Holding:
		return "holding"
	}
	return "unknown"
}

// Mode is the command being executed.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeCoast
	ModeBrake
	ModeHold
	ModeDuty
	ModeRun
	ModeRunTime
	ModeRunAngle
	ModeRunTarget
	ModeRunUntilStalled
	ModeTrack
)

var modeNames = [...]string{
	ModeIdle:            "idle",
	ModeCoast:           "coast",
	ModeBrake:           "brake",
	ModeHold:            "hold",
	ModeDuty:            "duty",
	ModeRun:             "run",
	ModeRunTime:         "run_time",
	ModeRunAngle:        "run_angle",
	ModeRunTarget:       "run_target",
	ModeRunUntilStalled: "run_until_stalled",
	ModeTrack:           "track_target",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// passive reports whether no closed loop motion is in progress.
func (m Mode) passive() bool {
	return m == ModeIdle || m == ModeCoast || m == ModeBrake
}

// Then is what a command does once it completes.
type Then uint8

const (
	ThenCoast Then = iota
	ThenBrake
	ThenHold
)

// ParseThen accepts "coast", "brake" and "hold".
func ParseThen(name string) (Then, error) {
	switch name {
	case "coast":
		return ThenCoast, nil
	case "brake":
		return ThenBrake, nil
	case "hold", "":
		return ThenHold, nil
	}
	return 0, errors.Wrapf(core.ErrInvalidArgument, "stop policy %q", name)
}

func (t Then) String() string {
	switch t {
	case ThenCoast:
		return "coast"
	case ThenBrake:
		return "brake"
	case ThenHold:
		return "hold"
	}
	return "unknown"
}

// Config describes the motor and its mechanics.
type Config struct {
	ID                uint8
	Device            model.DeviceType
	Direction         Direction
	Gears             [][]int32 // teeth per train, motor side first
	CountsPerRotation int32     // zero means 360
	BrakeTime         uint32    // ms, zero means DefaultBrakeTime
}

// Drivers are the hardware a servo reads and drives.
type Drivers struct {
	Motor   core.MotorDriver
	Encoder core.EncoderDriver
	Battery core.BatteryDriver
	Clock   core.Clock
}

// Servo controls one motor.
type Servo struct {
	mu sync.Mutex

	id        uint8
	dev       model.Device
	geo       geometry
	drv       Drivers
	brakeTime uint32

	settings control.Settings
	obs      *observer.Observer
	ctl      *control.Controller

	mode      Mode
	then      Then
	actuation Actuation

	count    int32 // last good raw count
	counts   int64 // accumulated counts
	offset   int64 // added to the measured angle by ResetAngle
	measured int64
	faults   uint32
	faulted  bool
	dfaulted bool // last motor write failed
	battery  int32

	duty    int32 // motor frame
	voltage int32 // applied until the next tick, motor frame
	out     control.Output

	brakeSince uint32
	lastTick   uint32
	ticked     bool

	done       bool
	pending    bool // doneCh still open
	doneCh     chan struct{}
	stallAngle int64
	stallSeen  bool

	events core.EventRing
	log    *telemetry.Log
}

var closedCh = make(chan struct{})

func init() {
	close(closedCh)
}

// New creates a coasting servo at the angle currently reported by the
// encoder.
func New(cfg Config, drv Drivers) (*Servo, error) {
	if drv.Motor == nil || drv.Encoder == nil || drv.Battery == nil || drv.Clock == nil {
		return nil, errors.Wrap(core.ErrInvalidArgument, "incomplete drivers")
	}
	dev, err := model.Lookup(cfg.Device)
	if err != nil {
		return nil, err
	}
	geo, err := newGeometry(cfg.Direction, cfg.Gears, cfg.CountsPerRotation)
	if err != nil {
		return nil, err
	}
	s := &Servo{
		id:        cfg.ID,
		dev:       dev,
		geo:       geo,
		drv:       drv,
		brakeTime: cfg.BrakeTime,
		settings:  control.DefaultSettings(dev),
		battery:   defaultBattery,
		done:      true,
		doneCh:    closedCh,
	}
	if s.brakeTime == 0 {
		s.brakeTime = DefaultBrakeTime
	}
	if s.brakeTime > control.MaxStallTime {
		return nil, errors.Wrapf(core.ErrInvalidArgument, "brake time %d", s.brakeTime)
	}
	s.obs = observer.New(dev.Model, dev.MaxVoltage, observer.DefaultGains)
	s.ctl = control.New(dev.Model, &s.settings)

	count, err := drv.Encoder.Count()
	if err != nil {
		return nil, errors.Wrap(err, "read encoder")
	}
	s.count = count
	s.counts = int64(count)
	s.measured = geo.countsToAngle(s.counts)
	s.obs.Reset(s.measured)
	if v, err := drv.Battery.Voltage(); err == nil && v > 0 {
		s.battery = v
	}
	if err := drv.Motor.Coast(); err != nil {
		return nil, errors.Wrap(err, "coast motor")
	}
	return s, nil
}

func (s *Servo) ID() uint8 {
	return s.id
}

// Device returns the motor type and its model.
func (s *Servo) Device() model.Device {
	return s.dev
}

// GearRatio returns motor turns per output turn as a fraction.
func (s *Servo) GearRatio() (num, den int64) {
	return s.geo.num, s.geo.den
}

// SetLog attaches a sample log, or detaches it when l is nil.
func (s *Servo) SetLog(l *telemetry.Log) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// Events returns the event ring of this servo.
func (s *Servo) Events() *core.EventRing {
	return &s.events
}

// Angle returns the estimated output angle in mdeg.
func (s *Servo) Angle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo.toUser(s.obs.State().Angle)
}

// MeasuredAngle returns the output angle from the encoder in mdeg.
func (s *Servo) MeasuredAngle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo.toUser(s.measured)
}

// Speed returns the estimated output speed in mdeg/s.
func (s *Servo) Speed() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo.toUser32(s.obs.State().Speed)
}

// Load returns the estimated external torque on the motor in µNm, positive
// when it resists positive motion.
func (s *Servo) Load() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.Load()
}

// IsDone reports whether the last command has completed. Endless commands
// never complete; track_target is done while on target.
func (s *Servo) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// IsStalled reports whether the controller has been pushing at its torque
// limit without moving for the stall time.
func (s *Servo) IsStalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctl.Active() && s.ctl.Stalled()
}

// StallDuration returns how long the stall condition has held in ms.
func (s *Servo) StallDuration() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ctl.Active() {
		return 0
	}
	return s.ctl.StallDuration(s.lastTick)
}

// StallAngle returns the output angle at which the last run_until_stalled
// completed.
func (s *Servo) StallAngle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo.toUser(s.stallAngle)
}

func (s *Servo) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Servo) Actuation() Actuation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actuation
}

// Faults returns the number of failed encoder reads.
func (s *Servo) Faults() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults
}

// Snapshot is the complete user visible state of a servo.
type Snapshot struct {
	Time      uint32
	Mode      Mode
	Then      Then
	Actuation Actuation

	Angle    int64 // output mdeg
	Speed    int32 // output mdeg/s
	Current  int32 // 0.1 mA
	Load     int32 // µNm
	RefAngle int64 // output mdeg
	RefSpeed int32 // output mdeg/s

	Torque  int32
	Duty    int32
	Battery int32

	Done    bool
	Stalled bool
	Faults  uint32
}

// State returns a snapshot as of the latest tick.
func (s *Servo) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	est := s.obs.State()
	snap := Snapshot{
		Time:      s.lastTick,
		Mode:      s.mode,
		Then:      s.then,
		Actuation: s.actuation,
		Angle:     s.geo.toUser(est.Angle),
		Speed:     s.geo.toUser32(est.Speed),
		Current:   est.Current,
		Load:      s.obs.Load(),
		RefAngle:  s.geo.toUser(est.Angle),
		Torque:    s.out.Torque,
		Duty:      s.duty,
		Battery:   s.battery,
		Done:      s.done,
		Stalled:   s.ctl.Active() && s.ctl.Stalled(),
		Faults:    s.faults,
	}
	if s.ctl.Active() {
		ref := s.ctl.Reference(s.lastTick)
		snap.RefAngle = s.geo.toUser(ref.Angle)
		snap.RefSpeed = s.geo.toUser32(ref.Speed)
	}
	return snap
}
