package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gobricks/command"
	"gobricks/config"
	"gobricks/core"
	"gobricks/host/analysis"
	"gobricks/host/mcu"
	"gobricks/host/plot"
	"gobricks/model"
	"gobricks/servo"
	"gobricks/sim"
	"gobricks/telemetry"
)

// drainEvery bounds how long the bench runs between log drains so the
// sample rings never wrap.
const drainEvery = 100

const defaultWaitTimeout = 10000

// bench runs configured servos against simulated motors.
type bench struct {
	rig     *sim.Rig
	servos  []*servo.Servo
	logs    []*telemetry.Log
	interp  *command.Interpreter
	samples []mcu.Sample
	seen    []uint32
	log     zerolog.Logger
}

func newBench(cfg *config.Config, log zerolog.Logger) (*bench, error) {
	b := &bench{rig: &sim.Rig{}, log: log}
	for _, sc := range cfg.Servos {
		dev, err := model.ParseDeviceType(sc.Device)
		if err != nil {
			return nil, errors.Wrapf(err, "servo %d", sc.ID)
		}
		m, err := sim.NewDevice(dev)
		if err != nil {
			return nil, err
		}
		if sc.CountsPerRotation != 0 {
			if err := m.SetCountsPerRotation(sc.CountsPerRotation); err != nil {
				return nil, errors.Wrapf(err, "servo %d", sc.ID)
			}
		}
		m.SetBattery(sc.Battery)
		b.rig.AddMotor(m)

		s, err := sc.Build(servo.Drivers{Motor: m, Encoder: m, Battery: m, Clock: &b.rig.Clock})
		if err != nil {
			return nil, err
		}
		l := telemetry.NewLog(cfg.Telemetry.Capacity)
		l.SetDecimation(cfg.Telemetry.Decimation)
		s.SetLog(l)
		b.rig.Attach(s, model.ControlPeriodMS)
		b.servos = append(b.servos, s)
		b.logs = append(b.logs, l)
		b.seen = append(b.seen, 0)
	}
	b.interp = command.NewInterpreter(b.servos...)
	return b, nil
}

// advance runs the simulation for ms milliseconds or until done reports
// true. It reports whether done did.
func (b *bench) advance(ms uint32, done func() bool) bool {
	for ms > 0 {
		step := uint32(drainEvery)
		if ms < step {
			step = ms
		}
		var ok bool
		if done != nil {
			ok = b.rig.RunUntil(done, step)
		} else {
			b.rig.Run(step)
		}
		ms -= step
		b.drain()
		if ok {
			return true
		}
	}
	return done != nil && done()
}

func (b *bench) drain() {
	for i, l := range b.logs {
		id := b.servos[i].ID()
		for _, s := range l.Drain() {
			b.samples = append(b.samples, mcu.Sample{ID: id, Sample: s})
		}
		b.logEvents(i)
	}
}

func (b *bench) logEvents(i int) {
	ring := b.servos[i].Events()
	total := ring.Total()
	fresh := int(total - b.seen[i])
	b.seen[i] = total
	evs := ring.Events()
	if fresh > len(evs) {
		fresh = len(evs)
	}
	for _, e := range evs[len(evs)-fresh:] {
		b.log.Debug().Uint32("t", e.Time).Uint8("servo", e.ID).Str("event", core.EventName(e.Kind)).
			Int64("value", e.Value).Int32("aux", e.Aux).Msg("event")
	}
}

func (b *bench) find(id int64) (*servo.Servo, error) {
	for _, s := range b.servos {
		if int64(s.ID()) == id {
			return s, nil
		}
	}
	return nil, errors.Wrapf(core.ErrInvalidArgument, "no servo %d", id)
}

// Exec runs one script line. Besides the command language it knows
// "sleep ms=N" and "wait [id=N] [timeout=MS]", which advance simulated time.
func (b *bench) Exec(text string) (string, error) {
	l, err := command.ParseLine(text)
	if err != nil || l.IsEmpty() {
		return "", err
	}
	switch l.Verb {
	case "sleep":
		if err := l.Only("ms"); err != nil {
			return "", err
		}
		ms, err := l.Int("ms", 0)
		if err != nil || ms < 0 {
			return "", errors.Wrap(core.ErrInvalidArgument, "sleep needs ms >= 0")
		}
		b.advance(uint32(ms), nil)
		return "", nil
	case "wait":
		if err := l.Only("id", "timeout"); err != nil {
			return "", err
		}
		id, err := l.Int("id", 0)
		if err != nil {
			return "", err
		}
		timeout, err := l.Int("timeout", defaultWaitTimeout)
		if err != nil || timeout < 0 {
			return "", errors.Wrap(core.ErrInvalidArgument, "timeout")
		}
		s, err := b.find(id)
		if err != nil {
			return "", err
		}
		if !b.advance(uint32(timeout), s.IsDone) {
			return "", errors.Errorf("servo %d not done after %d ms", id, timeout)
		}
		return fmt.Sprintf("done t=%d", b.rig.Now()), nil
	}
	return b.interp.Run(l)
}

// Script runs every line of r, echoing replies to w. It stops at the
// first error.
func (b *bench) Script(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		reply, err := b.Exec(sc.Text())
		if err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
		if reply != "" {
			fmt.Fprintln(w, reply)
		}
	}
	return sc.Err()
}

func runSim(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	cfgPath := fs.String("config", "", "servo configuration (JSON)")
	csvPath := fs.String("csv", "", "write the samples to this CSV file")
	pngPath := fs.String("png", "", "plot the samples to this PNG file")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	b, err := newBench(cfg, log)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return errors.Wrap(err, "open script")
		}
		defer f.Close()
		in = f
	}
	if err := b.Script(in, os.Stdout); err != nil {
		return err
	}
	log.Info().Int("samples", len(b.samples)).Uint32("t", b.rig.Now()).Msg("simulation finished")

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			return errors.Wrap(err, "create csv")
		}
		if err := analysis.WriteCSV(f, b.samples); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if *pngPath != "" {
		return plot.SavePNG(*pngPath, b.samples)
	}
	return nil
}
