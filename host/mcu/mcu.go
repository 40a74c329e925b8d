// Package mcu talks to servo firmware over its frame link: it identifies
// the board, runs command lines and collects telemetry.
package mcu

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gobricks/core"
	"gobricks/host/serial"
	"gobricks/protocol"
	"gobricks/telemetry"
)

// ReplyTimeout bounds the wait for a command result.
const ReplyTimeout = 2 * time.Second

// Info is the identify response.
type Info struct {
	Version string
	Servos  []ServoInfo
}

type ServoInfo struct {
	ID     uint8
	Device string
}

// Sample is a telemetry sample tagged with its servo.
type Sample struct {
	ID uint8
	telemetry.Sample
}

// MCU is a connection to servo firmware.
type MCU struct {
	transport *protocol.HostTransport
	log       zerolog.Logger

	// Replies to MsgIdentify and MsgCommand, one outstanding at a time.
	reqMu   sync.Mutex
	replies chan protocol.Message

	samples chan Sample
	events  chan core.Event
	status  chan telemetry.Status
	dropped atomic.Uint32
}

// New starts a connection on an open port.
func New(port io.ReadWriteCloser, log zerolog.Logger) *MCU {
	m := &MCU{
		log:     log,
		replies: make(chan protocol.Message, 1),
		samples: make(chan Sample, 1024),
		events:  make(chan core.Event, 64),
		status:  make(chan telemetry.Status, 64),
	}
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetHandler(m.handle)
	return m
}

// Connect opens a serial port and starts a connection on it.
func Connect(cfg *serial.Config, log zerolog.Logger) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, log.With().Str("port", cfg.Device).Logger()), nil
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	return m.transport.Close()
}

// Samples delivers streamed samples. Samples are dropped when it is not
// drained.
func (m *MCU) Samples() <-chan Sample {
	return m.samples
}

func (m *MCU) Events() <-chan core.Event {
	return m.events
}

func (m *MCU) Status() <-chan telemetry.Status {
	return m.status
}

// Dropped returns the number of messages lost to full channels.
func (m *MCU) Dropped() uint32 {
	return m.dropped.Load()
}

// Done is closed when the connection ends.
func (m *MCU) Done() <-chan struct{} {
	return m.transport.Done()
}

// Identify asks the firmware for its version and servos.
func (m *MCU) Identify() (Info, error) {
	msg, err := m.request(protocol.MsgIdentify, nil)
	if err != nil {
		return Info{}, err
	}
	p := msg.Payload
	var info Info
	if info.Version, err = protocol.DecodeVLQString(&p); err != nil {
		return info, errors.Wrap(err, "decode identify")
	}
	n, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return info, errors.Wrap(err, "decode identify")
	}
	for i := uint32(0); i < n; i++ {
		id, err := protocol.DecodeVLQUint(&p)
		if err != nil {
			return info, errors.Wrap(err, "decode identify")
		}
		dev, err := protocol.DecodeVLQString(&p)
		if err != nil {
			return info, errors.Wrap(err, "decode identify")
		}
		info.Servos = append(info.Servos, ServoInfo{ID: uint8(id), Device: dev})
	}
	return info, nil
}

// Execute runs a command line on the firmware. Errors returned by the
// firmware wrap the matching core sentinel.
func (m *MCU) Execute(line string) (string, error) {
	msg, err := m.request(protocol.MsgCommand, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQString(out, line)
	})
	if err != nil {
		return "", err
	}
	p := msg.Payload
	code, err := protocol.DecodeVLQInt(&p)
	if err != nil {
		return "", errors.Wrap(err, "decode result")
	}
	text, err := protocol.DecodeVLQString(&p)
	if err != nil {
		return "", errors.Wrap(err, "decode result")
	}
	switch code {
	case protocol.ResultOK:
		return text, nil
	case protocol.ResultInvalidArgument:
		return "", errors.Wrap(core.ErrInvalidArgument, text)
	case protocol.ResultBusy:
		return "", errors.Wrap(core.ErrBusy, text)
	case protocol.ResultNotSupported:
		return "", errors.Wrap(core.ErrNotSupported, text)
	}
	return "", errors.New(text)
}

func (m *MCU) request(msgID uint32, args func(protocol.OutputBuffer)) (protocol.Message, error) {
	m.reqMu.Lock()
	defer m.reqMu.Unlock()
	select {
	case <-m.replies:
	default:
	}
	if err := m.transport.Send(msgID, args); err != nil {
		return protocol.Message{}, err
	}
	want := msgID
	if msgID == protocol.MsgCommand {
		want = protocol.MsgResult
	}
	timer := time.NewTimer(ReplyTimeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-m.replies:
			if msg.ID == want {
				return msg, nil
			}
		case <-timer.C:
			return protocol.Message{}, errors.Wrapf(protocol.ErrTimeout, "reply to message %d", msgID)
		case <-m.transport.Done():
			return protocol.Message{}, protocol.ErrClosed
		}
	}
}

// handle runs on the transport read loop and must not block.
func (m *MCU) handle(msg protocol.Message) {
	p := msg.Payload
	switch msg.ID {
	case protocol.MsgIdentify, protocol.MsgResult:
		select {
		case m.replies <- msg:
		default:
			m.dropped.Add(1)
		}
	case protocol.MsgSample:
		id, smp, err := telemetry.DecodeSample(&p)
		if err != nil {
			m.log.Warn().Err(err).Msg("bad sample")
			return
		}
		m.offer(func() bool {
			select {
			case m.samples <- Sample{ID: id, Sample: smp}:
				return true
			default:
				return false
			}
		})
	case protocol.MsgEvent:
		e, err := telemetry.DecodeEvent(&p)
		if err != nil {
			m.log.Warn().Err(err).Msg("bad event")
			return
		}
		m.log.Debug().Uint8("servo", e.ID).Str("event", core.EventName(e.Kind)).
			Uint32("t", e.Time).Int64("value", e.Value).Int32("aux", e.Aux).Msg("event")
		m.offer(func() bool {
			select {
			case m.events <- e:
				return true
			default:
				return false
			}
		})
	case protocol.MsgStatus:
		st, err := telemetry.DecodeStatus(&p)
		if err != nil {
			m.log.Warn().Err(err).Msg("bad status")
			return
		}
		m.offer(func() bool {
			select {
			case m.status <- st:
				return true
			default:
				return false
			}
		})
	default:
		m.log.Warn().Uint32("id", msg.ID).Msg("unknown message")
	}
}

func (m *MCU) offer(send func() bool) {
	if !send() {
		m.dropped.Add(1)
	}
}
