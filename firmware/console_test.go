package firmware

import (
	"testing"

	"gobricks/core"
	"gobricks/model"
	"gobricks/protocol"
	"gobricks/servo"
	"gobricks/sim"
	"gobricks/telemetry"
)

type harness struct {
	rig     *sim.Rig
	srv     *servo.Servo
	console *Console
	written []byte
	seq     uint8
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{rig: &sim.Rig{}, seq: protocol.SeqDest}
	m, err := sim.NewDevice(model.TechnicMAngular)
	if err != nil {
		t.Fatal(err)
	}
	h.rig.AddMotor(m)
	h.srv, err = servo.New(servo.Config{Device: model.TechnicMAngular},
		servo.Drivers{Motor: m, Encoder: m, Battery: m, Clock: &h.rig.Clock})
	if err != nil {
		t.Fatal(err)
	}
	h.rig.Attach(h.srv, model.ControlPeriodMS)
	h.console = New(func(b []byte) { h.written = append(h.written, b...) }, h.srv)
	return h
}

// send delivers one host frame and returns the messages written back.
func (h *harness) send(t *testing.T, msgID uint32, args func(protocol.OutputBuffer)) []protocol.Frame {
	t.Helper()
	out := protocol.NewScratchOutput()
	protocol.WriteFrame(out, h.seq, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, msgID)
		if args != nil {
			args(o)
		}
	})
	h.seq = protocol.NextSeq(h.seq)
	h.console.Receive(protocol.NewSliceInputBuffer(out.Result()))
	return h.frames(t)
}

func (h *harness) frames(t *testing.T) []protocol.Frame {
	t.Helper()
	var s protocol.Scanner
	var frames []protocol.Frame
	data := h.written
	for {
		f, n, ok := s.Scan(data)
		if !ok {
			break
		}
		f.Payload = append([]byte(nil), f.Payload...)
		frames = append(frames, f)
		data = data[n:]
	}
	if s.Errors() != 0 {
		t.Fatalf("%d corrupt frames written", s.Errors())
	}
	h.written = nil
	return frames
}

func (h *harness) command(t *testing.T, line string) (int32, string) {
	t.Helper()
	frames := h.send(t, protocol.MsgCommand, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQString(o, line)
	})
	if len(frames) != 2 || !frames[1].IsAck() {
		t.Fatalf("%q: expected a result and an ack, got %d frames", line, len(frames))
	}
	p := frames[0].Payload
	id, _ := protocol.DecodeVLQUint(&p)
	code, _ := protocol.DecodeVLQInt(&p)
	msg, _ := protocol.DecodeVLQString(&p)
	if id != protocol.MsgResult {
		t.Fatalf("%q: reply message %d", line, id)
	}
	return code, msg
}

func TestIdentify(t *testing.T) {
	h := newHarness(t)
	frames := h.send(t, protocol.MsgIdentify, nil)
	if len(frames) != 2 {
		t.Fatalf("%d frames", len(frames))
	}
	p := frames[0].Payload
	id, _ := protocol.DecodeVLQUint(&p)
	version, _ := protocol.DecodeVLQString(&p)
	n, _ := protocol.DecodeVLQUint(&p)
	sid, _ := protocol.DecodeVLQUint(&p)
	dev, _ := protocol.DecodeVLQString(&p)
	if id != protocol.MsgIdentify || version != protocol.Version || n != 1 || sid != 0 || dev != "technic_m_angular" {
		t.Errorf("identify %d %q %d %d %q", id, version, n, sid, dev)
	}
	if frames[1].Seq != 0x11 {
		t.Errorf("ack sequence %#x", frames[1].Seq)
	}
}

func TestCommandResults(t *testing.T) {
	h := newHarness(t)
	h.rig.Run(20)
	if code, msg := h.command(t, "run_target speed=300 target=45"); code != protocol.ResultOK || msg != "ok" {
		t.Errorf("run_target: %d %q", code, msg)
	}
	h.rig.Run(20)
	if code, _ := h.command(t, "pid kp=1"); code != protocol.ResultBusy {
		t.Errorf("pid while moving: %d", code)
	}
	if code, _ := h.command(t, "run speed=99999"); code != protocol.ResultInvalidArgument {
		t.Errorf("speed beyond limit: %d", code)
	}
	if code, _ := h.command(t, "fly"); code != protocol.ResultNotSupported {
		t.Errorf("unknown verb: %d", code)
	}
	if code, msg := h.command(t, "state"); code != protocol.ResultOK || len(msg) < 20 {
		t.Errorf("state: %d %q", code, msg)
	}
}

func TestStreaming(t *testing.T) {
	h := newHarness(t)
	if code, _ := h.command(t, "stream every=2 status=0"); code != protocol.ResultOK {
		t.Fatalf("stream: %d", code)
	}
	h.command(t, "run speed=200")
	h.rig.Run(100)
	h.console.Poll(h.rig.Now())

	samples, events := 0, 0
	for _, f := range h.frames(t) {
		p := f.Payload
		id, _ := protocol.DecodeVLQUint(&p)
		switch id {
		case protocol.MsgSample:
			if _, _, err := telemetry.DecodeSample(&p); err != nil {
				t.Fatal(err)
			}
			samples++
		case protocol.MsgEvent:
			e, err := telemetry.DecodeEvent(&p)
			if err != nil {
				t.Fatal(err)
			}
			if e.Kind == core.EvtCommand {
				events++
			}
		case protocol.MsgStatus:
			t.Error("status sent with status=0")
		}
	}
	// 20 ticks in 100 ms, every second one kept.
	if samples != 10 {
		t.Errorf("%d samples", samples)
	}
	if events != 1 {
		t.Errorf("%d command events", events)
	}

	h.rig.Run(50)
	h.console.Poll(h.rig.Now())
	for _, f := range h.frames(t) {
		p := f.Payload
		if id, _ := protocol.DecodeVLQUint(&p); id == protocol.MsgEvent {
			t.Error("events sent twice")
		}
	}
}

func TestStatusReports(t *testing.T) {
	h := newHarness(t)
	h.rig.Run(DefaultStatusPeriod + 10)
	h.console.Poll(h.rig.Now())
	var got []telemetry.Status
	for _, f := range h.frames(t) {
		p := f.Payload
		if id, _ := protocol.DecodeVLQUint(&p); id == protocol.MsgStatus {
			st, err := telemetry.DecodeStatus(&p)
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, st)
		}
	}
	if len(got) != 1 || !got[0].Done || got[0].Battery == 0 {
		t.Errorf("status %+v", got)
	}
	h.console.Poll(h.rig.Now())
	if len(h.frames(t)) != 0 {
		t.Error("status sent again within the period")
	}
}

func TestResultCode(t *testing.T) {
	if ResultCode(nil) != protocol.ResultOK || ResultCode(core.ErrBusy) != protocol.ResultBusy {
		t.Error("result codes")
	}
}
