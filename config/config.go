// Package config loads servo and host tool settings from JSON.
package config

import (
	"encoding/json"
	"math"
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"gobricks/control"
	"gobricks/core"
	"gobricks/model"
	"gobricks/servo"
)

// Config is a complete setup: the servos and the host side plumbing.
type Config struct {
	Servos    []ServoConfig   `mapstructure:"servos"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

// ServoConfig describes one motor. Angles are in degrees at the output
// shaft. Unset overrides keep the device defaults.
type ServoConfig struct {
	ID                uint8         `mapstructure:"id"`
	Device            string        `mapstructure:"device"`
	Direction         string        `mapstructure:"direction"`
	Gears             [][]int32     `mapstructure:"gears"`
	CountsPerRotation int32         `mapstructure:"counts_per_rotation"`
	BrakeTime         time.Duration `mapstructure:"brake_time"`

	Limits   *LimitsConfig   `mapstructure:"limits"`
	PID      *PIDConfig      `mapstructure:"pid"`
	Stall    *StallConfig    `mapstructure:"stall"`
	Observer *ObserverConfig `mapstructure:"observer"`

	// Battery is the simulated supply in mV.
	Battery int32 `mapstructure:"battery"`
}

type LimitsConfig struct {
	Speed        *float64 `mapstructure:"speed"`        // deg/s
	Acceleration *float64 `mapstructure:"acceleration"` // deg/s^2
	Deceleration *float64 `mapstructure:"deceleration"` // deg/s^2
	Duty         *float64 `mapstructure:"duty"`         // percent
	Torque       *float64 `mapstructure:"torque"`       // mNm
}

type PIDConfig struct {
	Kp           *int32         `mapstructure:"kp"`
	Ki           *int32         `mapstructure:"ki"`
	Kd           *int32         `mapstructure:"kd"`
	IntegralRate *float64       `mapstructure:"integral_rate"`      // deg/s
	PositionTol  *float64       `mapstructure:"position_tolerance"` // deg
	SpeedTol     *float64       `mapstructure:"speed_tolerance"`    // deg/s
	Dwell        *time.Duration `mapstructure:"dwell"`
}

type StallConfig struct {
	Speed *float64       `mapstructure:"speed"` // deg/s
	Time  *time.Duration `mapstructure:"time"`
}

type ObserverConfig struct {
	Low       *int32   `mapstructure:"low"`
	High      *int32   `mapstructure:"high"`
	Threshold *float64 `mapstructure:"threshold"` // deg
}

type SerialConfig struct {
	Port string        `mapstructure:"port"`
	Baud int           `mapstructure:"baud"`
	Read time.Duration `mapstructure:"read_timeout"`
}

type TelemetryConfig struct {
	Capacity   int    `mapstructure:"capacity"`
	Decimation uint32 `mapstructure:"decimation"`
}

type StreamConfig struct {
	Websocket string `mapstructure:"websocket"` // listen address, empty disables
	MQTT      string `mapstructure:"mqtt"`      // broker URL, empty disables
	Topic     string `mapstructure:"topic"`
	ClientID  string `mapstructure:"client_id"`
}

// LoadConfig parses a JSON document and fills in defaults.
func LoadConfig(jsonData []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	var cfg Config
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := LoadConfig(data)
	return cfg, errors.Wrapf(err, "%s", path)
}

func decode(in interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			millisecondsHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return errors.Wrapf(core.ErrInvalidArgument, "decode config: %v", err)
	}
	return nil
}

// millisecondsHook reads bare numbers as milliseconds for durations.
func millisecondsHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	if v, ok := data.(float64); ok {
		return time.Duration(v * float64(time.Millisecond)), nil
	}
	return data, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if len(cfg.Servos) == 0 {
		cfg.Servos = []ServoConfig{{}}
	}
	for i := range cfg.Servos {
		sc := &cfg.Servos[i]
		if sc.Device == "" {
			sc.Device = model.TechnicMAngular.String()
		}
		if sc.Battery == 0 {
			sc.Battery = 7200
		}
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.Read == 0 {
		cfg.Serial.Read = 100 * time.Millisecond
	}
	if cfg.Telemetry.Capacity == 0 {
		cfg.Telemetry.Capacity = 2000
	}
	if cfg.Telemetry.Decimation == 0 {
		cfg.Telemetry.Decimation = 1
	}
	if cfg.Stream.Topic == "" {
		cfg.Stream.Topic = "gobricks/servo"
	}
	if cfg.Stream.ClientID == "" {
		cfg.Stream.ClientID = "servo-host"
	}
}

// Validate checks what can be checked without building the servos.
func (c *Config) Validate() error {
	seen := map[uint8]bool{}
	for _, sc := range c.Servos {
		if seen[sc.ID] {
			return errors.Wrapf(core.ErrInvalidArgument, "servo id %d used twice", sc.ID)
		}
		seen[sc.ID] = true
		if _, err := sc.ServoConfig(); err != nil {
			return errors.Wrapf(err, "servo %d", sc.ID)
		}
	}
	return nil
}

// DefaultConfig returns a single technic M angular motor.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// ServoConfig converts the mechanical part to a servo.Config.
func (sc ServoConfig) ServoConfig() (servo.Config, error) {
	dev, err := model.ParseDeviceType(sc.Device)
	if err != nil {
		return servo.Config{}, err
	}
	dir, err := servo.ParseDirection(sc.Direction)
	if err != nil {
		return servo.Config{}, err
	}
	if sc.BrakeTime < 0 || sc.BrakeTime > time.Duration(control.MaxStallTime)*time.Millisecond {
		return servo.Config{}, errors.Wrapf(core.ErrInvalidArgument, "brake time %v", sc.BrakeTime)
	}
	return servo.Config{
		ID:                sc.ID,
		Device:            dev,
		Direction:         dir,
		Gears:             sc.Gears,
		CountsPerRotation: sc.CountsPerRotation,
		BrakeTime:         uint32(sc.BrakeTime / time.Millisecond),
	}, nil
}

// Build creates a servo and applies the configured overrides.
func (sc ServoConfig) Build(drv servo.Drivers) (*servo.Servo, error) {
	cfg, err := sc.ServoConfig()
	if err != nil {
		return nil, err
	}
	s, err := servo.New(cfg, drv)
	if err != nil {
		return nil, err
	}
	if err := sc.Apply(s); err != nil {
		return nil, errors.Wrapf(err, "servo %d", sc.ID)
	}
	return s, nil
}

// Apply sets the overrides through the servo's setters, so they are
// validated like runtime changes. The servo must not be moving.
func (sc ServoConfig) Apply(s *servo.Servo) error {
	set := s.Settings()
	if l := sc.Limits; l != nil {
		lim := set.Limits
		setMilli(&lim.Speed, l.Speed)
		setMilli(&lim.Acceleration, l.Acceleration)
		setMilli(&lim.Deceleration, l.Deceleration)
		setMilli(&lim.Torque, l.Torque)
		if l.Duty != nil {
			lim.Duty = int32(math.Round(*l.Duty * core.DutyMax / 100))
		}
		if err := s.ConfigureLimits(lim); err != nil {
			return err
		}
	}
	if p := sc.PID; p != nil {
		pid, tol := set.PID, set.Tolerances
		setInt(&pid.Kp, p.Kp)
		setInt(&pid.Ki, p.Ki)
		setInt(&pid.Kd, p.Kd)
		setMilli(&pid.IntegralRate, p.IntegralRate)
		setMilli(&tol.Position, p.PositionTol)
		setMilli(&tol.Speed, p.SpeedTol)
		if err := setMillis(&tol.Dwell, p.Dwell); err != nil {
			return err
		}
		if err := s.ConfigurePID(pid, tol); err != nil {
			return err
		}
	}
	if st := sc.Stall; st != nil {
		stall := set.Stall
		setMilli(&stall.Speed, st.Speed)
		if err := setMillis(&stall.Time, st.Time); err != nil {
			return err
		}
		if err := s.ConfigureStall(stall); err != nil {
			return err
		}
	}
	if o := sc.Observer; o != nil {
		g := s.ObserverGains()
		setInt(&g.Low, o.Low)
		setInt(&g.High, o.High)
		setMilli(&g.Threshold, o.Threshold)
		if err := s.ConfigureObserver(g); err != nil {
			return err
		}
	}
	return nil
}

// setMilli stores a value given in whole units as thousandths, saturating
// at the int32 range so the setters reject it.
func setMilli(dst *int32, v *float64) {
	if v == nil {
		return
	}
	m := math.Round(*v * 1000)
	switch {
	case math.IsNaN(m):
		*dst = -1
	case m > math.MaxInt32:
		*dst = math.MaxInt32
	case m < math.MinInt32:
		*dst = math.MinInt32
	default:
		*dst = int32(m)
	}
}

func setInt(dst *int32, v *int32) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *uint32, d *time.Duration) error {
	if d == nil {
		return nil
	}
	if *d < 0 || *d > time.Duration(control.MaxStallTime)*time.Millisecond {
		return errors.Wrapf(core.ErrInvalidArgument, "duration %v", *d)
	}
	*dst = uint32(*d / time.Millisecond)
	return nil
}
