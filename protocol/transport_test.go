package protocol

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func hostFrame(seq uint8, msgID uint32, args func(OutputBuffer)) []byte {
	out := NewScratchOutput()
	WriteFrame(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, msgID)
		if args != nil {
			args(o)
		}
	})
	return append([]byte(nil), out.Result()...)
}

func TestLinkAcknowledges(t *testing.T) {
	out := NewScratchOutput()
	var got []string
	link := NewLink(out, func(id uint32, payload *[]byte) error {
		s, err := DecodeVLQString(payload)
		got = append(got, s)
		return err
	})
	flushed := 0
	link.SetFlushCallback(func() { flushed++ })

	link.Receive(NewSliceInputBuffer(hostFrame(0x10, MsgCommand, func(o OutputBuffer) {
		EncodeVLQString(o, "stop")
	})))
	if len(got) != 1 || got[0] != "stop" {
		t.Fatalf("handler saw %v", got)
	}
	if !bytes.Equal(out.Result(), []byte{5, 0x11, 0x8F, 0x08, SyncByte}) {
		t.Errorf("ack = %v", out.Result())
	}
	if flushed != 1 {
		t.Errorf("flushed %d times", flushed)
	}
}

func TestLinkDropsRepeats(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	link := NewLink(out, func(id uint32, payload *[]byte) error {
		calls++
		return nil
	})
	frame := hostFrame(0x10, MsgIdentify, nil)
	link.Receive(NewSliceInputBuffer(frame))
	out.Reset()
	// A retransmission after a lost ack is acknowledged but not run again.
	frame2 := hostFrame(0x11, MsgIdentify, nil)
	link.Receive(NewSliceInputBuffer(append(frame2, frame2...)))
	if calls != 2 {
		t.Errorf("handler called %d times, expected 2", calls)
	}
	data := out.Result()
	s := Scanner{}
	for i := 0; i < 2; i++ {
		f, n, ok := s.Scan(data)
		if !ok || f.Seq != 0x12 {
			t.Fatalf("ack %d = %+v %v", i, f, ok)
		}
		data = data[n:]
	}
}

func TestLinkHostReset(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, func(uint32, *[]byte) error { return nil })
	resets := 0
	link.SetResetCallback(func() { resets++ })
	link.Receive(NewSliceInputBuffer(hostFrame(0x10, MsgIdentify, nil)))
	link.Receive(NewSliceInputBuffer(hostFrame(0x10, MsgIdentify, nil)))
	if resets != 1 {
		t.Errorf("resets = %d, expected 1", resets)
	}
}

func TestLinkHandlerErrors(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, func(id uint32, payload *[]byte) error {
		if id == MsgIdentify {
			panic("boom")
		}
		return errors.New("bad")
	})
	link.Receive(NewSliceInputBuffer(hostFrame(0x10, MsgIdentify, nil)))
	link.Receive(NewSliceInputBuffer(hostFrame(0x11, MsgCommand, nil)))
	if link.HandlerErrors() != 2 {
		t.Errorf("handler errors = %d, expected 2", link.HandlerErrors())
	}
}

func TestLinkSend(t *testing.T) {
	out := NewScratchOutput()
	link := NewLink(out, nil)
	err := link.Send(MsgResult, func(o OutputBuffer) {
		EncodeVLQInt(o, ResultBusy)
		EncodeVLQString(o, "busy")
	})
	if err != nil {
		t.Fatal(err)
	}
	var s Scanner
	f, _, ok := s.Scan(out.Result())
	if !ok {
		t.Fatal("no frame written")
	}
	p := f.Payload
	id, _ := DecodeVLQUint(&p)
	code, _ := DecodeVLQInt(&p)
	msg, _ := DecodeVLQString(&p)
	if id != MsgResult || code != ResultBusy || msg != "busy" {
		t.Errorf("decoded %d %d %q", id, code, msg)
	}
}
