// Package firmware connects servos to the host link: command lines come
// in as MsgCommand frames and results, samples, events and status reports
// go out. It has no hardware dependencies; targets provide the byte
// transport and call Receive and Poll from their main loop.
package firmware

import (
	"github.com/pkg/errors"

	"gobricks/command"
	"gobricks/core"
	"gobricks/protocol"
	"gobricks/servo"
	"gobricks/telemetry"
)

// DefaultStatusPeriod is the interval between status reports in ms.
const DefaultStatusPeriod = 100

// LogCapacity is the number of samples buffered per servo between polls.
const LogCapacity = 64

// Console serves one host connection.
type Console struct {
	out    *protocol.ScratchOutput
	write  func([]byte)
	link   *protocol.Link
	interp *command.Interpreter

	servos []*servo.Servo
	logs   []*telemetry.Log
	events []uint32 // events already sent per servo

	streaming    bool
	statusPeriod uint32
	lastStatus   uint32
	debug        core.DebugWriter
}

// New creates a console writing frames with write.
func New(write func([]byte), servos ...*servo.Servo) *Console {
	c := &Console{
		out:          protocol.NewScratchOutput(),
		write:        write,
		interp:       command.NewInterpreter(servos...),
		servos:       servos,
		events:       make([]uint32, len(servos)),
		statusPeriod: DefaultStatusPeriod,
	}
	for _, s := range servos {
		l := telemetry.NewLog(LogCapacity)
		s.SetLog(l)
		c.logs = append(c.logs, l)
	}
	c.link = protocol.NewLink(c.out, c.handle)
	c.link.SetFlushCallback(c.flush)
	c.link.SetResetCallback(c.reset)
	return c
}

// SetDebugWriter sets where rejected commands are reported.
func (c *Console) SetDebugWriter(w core.DebugWriter) {
	c.debug = w
}

// Receive processes data from the host.
func (c *Console) Receive(in protocol.InputBuffer) {
	c.link.Receive(in)
}

// Streaming reports whether samples are being sent.
func (c *Console) Streaming() bool {
	return c.streaming
}

// Poll sends buffered samples, new events and, every status period, a
// status report per servo. It must run on the same thread as the control
// ticks or with their interrupt masked.
func (c *Console) Poll(now uint32) {
	for i, s := range c.servos {
		c.sendEvents(i, s)
		if c.streaming {
			for _, smp := range c.logs[i].Drain() {
				c.send(protocol.MsgSample, func(out protocol.OutputBuffer) {
					telemetry.EncodeSample(out, s.ID(), smp)
				})
			}
		} else {
			c.logs[i].Reset()
		}
	}
	if c.statusPeriod > 0 && now-c.lastStatus >= c.statusPeriod {
		c.lastStatus = now
		for _, s := range c.servos {
			st := Status(s)
			c.send(protocol.MsgStatus, func(out protocol.OutputBuffer) {
				telemetry.EncodeStatus(out, st)
			})
		}
	}
}

func (c *Console) sendEvents(i int, s *servo.Servo) {
	ring := s.Events()
	total := ring.Total()
	fresh := total - c.events[i]
	if fresh == 0 {
		return
	}
	c.events[i] = total
	evs := ring.Events()
	if int(fresh) < len(evs) {
		evs = evs[len(evs)-int(fresh):]
	}
	for _, e := range evs {
		c.send(protocol.MsgEvent, func(out protocol.OutputBuffer) {
			telemetry.EncodeEvent(out, e)
		})
	}
}

func (c *Console) send(msgID uint32, args func(protocol.OutputBuffer)) {
	if err := c.link.Send(msgID, args); err != nil {
		c.out.Reset()
		return
	}
	c.flush()
}

func (c *Console) flush() {
	if data := c.out.Result(); len(data) > 0 {
		c.write(data)
	}
	c.out.Reset()
}

func (c *Console) reset() {
	c.streaming = false
	for i, s := range c.servos {
		c.events[i] = s.Events().Total()
	}
}

func (c *Console) handle(msgID uint32, payload *[]byte) error {
	switch msgID {
	case protocol.MsgIdentify:
		return c.link.Send(protocol.MsgIdentify, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQString(out, protocol.Version)
			protocol.EncodeVLQUint(out, uint32(len(c.servos)))
			for _, s := range c.servos {
				protocol.EncodeVLQUint(out, uint32(s.ID()))
				protocol.EncodeVLQString(out, s.Device().Type.String())
			}
		})
	case protocol.MsgCommand:
		text, err := protocol.DecodeVLQString(payload)
		if err != nil {
			return err
		}
		reply, err := c.execute(text)
		if err != nil && c.debug != nil {
			c.debug("[CONSOLE] " + text + ": " + err.Error())
		}
		return c.link.Send(protocol.MsgResult, func(out protocol.OutputBuffer) {
			code, msg := ResultCode(err), reply
			if err != nil {
				msg = err.Error()
			}
			protocol.EncodeVLQInt(out, code)
			protocol.EncodeVLQString(out, truncate(msg, maxReply))
		})
	}
	return errors.Wrapf(core.ErrNotSupported, "message %d", msgID)
}

// maxReply keeps a result inside one frame.
const maxReply = protocol.PayloadMax - 16

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// execute runs console verbs and passes everything else to the servos.
func (c *Console) execute(text string) (string, error) {
	l, err := command.ParseLine(text)
	if err != nil || l.IsEmpty() {
		return "", err
	}
	switch l.Verb {
	case "stream":
		if err := l.Only("every", "status"); err != nil {
			return "", err
		}
		every, err := l.Int("every", 1)
		if err != nil {
			return "", err
		}
		status, err := l.Int("status", int64(c.statusPeriod))
		if err != nil {
			return "", err
		}
		if every < 0 || every > 1000 || status < 0 || status > 60000 {
			return "", errors.Wrapf(core.ErrInvalidArgument, "stream every=%d status=%d", every, status)
		}
		c.streaming = every > 0
		c.statusPeriod = uint32(status)
		for _, lg := range c.logs {
			lg.Reset()
			if every > 0 {
				lg.SetDecimation(uint32(every))
			}
		}
		return "ok", nil
	case "events":
		s, err := c.servo(l)
		if err != nil {
			return "", err
		}
		var lines string
		s.Events().Dump(func(line string) { lines += line + "\n" })
		if c.debug != nil {
			c.debug(lines)
		}
		return "total=" + core.Itoa(int64(s.Events().Total())), nil
	}
	return c.interp.Run(l)
}

func (c *Console) servo(l command.Line) (*servo.Servo, error) {
	id, err := l.Int("id", 0)
	if err != nil {
		return nil, err
	}
	for _, s := range c.servos {
		if int64(s.ID()) == id {
			return s, nil
		}
	}
	return nil, errors.Wrapf(core.ErrInvalidArgument, "no servo with id %d", id)
}

// ResultCode classifies a command error for MsgResult.
func ResultCode(err error) int32 {
	switch {
	case err == nil:
		return protocol.ResultOK
	case errors.Is(err, core.ErrInvalidArgument):
		return protocol.ResultInvalidArgument
	case errors.Is(err, core.ErrBusy):
		return protocol.ResultBusy
	case errors.Is(err, core.ErrNotSupported):
		return protocol.ResultNotSupported
	}
	return protocol.ResultError
}

// Status converts a servo snapshot to its wire form.
func Status(s *servo.Servo) telemetry.Status {
	st := s.State()
	return telemetry.Status{
		ID:        s.ID(),
		Time:      st.Time,
		Mode:      uint8(st.Mode),
		Then:      uint8(st.Then),
		Actuation: uint8(st.Actuation),
		Angle:     st.Angle,
		Speed:     st.Speed,
		Current:   st.Current,
		Load:      st.Load,
		RefAngle:  st.RefAngle,
		RefSpeed:  st.RefSpeed,
		Torque:    st.Torque,
		Duty:      st.Duty,
		Battery:   st.Battery,
		Done:      st.Done,
		Stalled:   st.Stalled,
		Faults:    st.Faults,
	}
}
