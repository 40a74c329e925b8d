package protocol

import (
	"bytes"
	"testing"
)

func TestWriteAck(t *testing.T) {
	out := NewScratchOutput()
	WriteAck(out, 0x11)
	want := []byte{5, 0x11, 0x8F, 0x08, SyncByte}
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("ack = %v, expected %v", out.Result(), want)
	}
}

func TestNextSeq(t *testing.T) {
	if got := NextSeq(0x10); got != 0x11 {
		t.Errorf("NextSeq(0x10) = %#x", got)
	}
	if got := NextSeq(0x1F); got != 0x10 {
		t.Errorf("NextSeq(0x1F) = %#x", got)
	}
}

func TestFrameTooLong(t *testing.T) {
	out := NewScratchOutput()
	err := WriteFrame(out, SeqDest, func(o OutputBuffer) {
		o.Output(make([]byte, PayloadMax+1))
	})
	if err == nil {
		t.Fatal("expected an error for an oversized payload")
	}
	out.Reset()
	if err := WriteFrame(out, SeqDest, func(o OutputBuffer) { o.Output(make([]byte, PayloadMax)) }); err != nil {
		t.Fatalf("maximum payload: %v", err)
	}
	if len(out.Result()) != FrameMax {
		t.Errorf("frame length %d, expected %d", len(out.Result()), FrameMax)
	}
}

func frameBytes(seq uint8, payload ...byte) []byte {
	out := NewScratchOutput()
	WriteFrame(out, seq, func(o OutputBuffer) { o.Output(payload) })
	return append([]byte(nil), out.Result()...)
}

func TestScanner(t *testing.T) {
	var s Scanner
	data := append(frameBytes(0x12, 1, 2, 3), frameBytes(0x13)...)

	f, n, ok := s.Scan(data)
	if !ok || f.Seq != 0x12 || !bytes.Equal(f.Payload, []byte{1, 2, 3}) {
		t.Fatalf("first frame = %+v, %v", f, ok)
	}
	data = data[n:]
	f, n, ok = s.Scan(data)
	if !ok || f.Seq != 0x13 || !f.IsAck() {
		t.Fatalf("second frame = %+v, %v", f, ok)
	}
	if n != len(data) {
		t.Errorf("consumed %d of %d", n, len(data))
	}
}

func TestScannerPartial(t *testing.T) {
	var s Scanner
	full := frameBytes(0x10, 9, 9)
	_, n, ok := s.Scan(full[:4])
	if ok || n != 0 {
		t.Fatalf("partial frame: ok=%v consumed=%d", ok, n)
	}
	f, n, ok := s.Scan(full)
	if !ok || n != len(full) || len(f.Payload) != 2 {
		t.Errorf("completed frame: %+v consumed=%d ok=%v", f, n, ok)
	}
}

func TestScannerResync(t *testing.T) {
	var s Scanner
	bad := frameBytes(0x10, 1, 2)
	bad[3] ^= 0xFF
	data := append(bad, frameBytes(0x11, 7)...)

	f, n, ok := s.Scan(data)
	if !ok {
		t.Fatal("expected the frame after the corrupt one")
	}
	if f.Seq != 0x11 || f.Payload[0] != 7 {
		t.Errorf("frame = %+v", f)
	}
	if n != len(data) {
		t.Errorf("consumed %d of %d", n, len(data))
	}
	if s.Errors() != 1 {
		t.Errorf("errors = %d, expected 1", s.Errors())
	}
}

func TestScannerGarbage(t *testing.T) {
	var s Scanner
	data := []byte{0x00, 0x42, 0x43, 0x44, 0x45, 0x46}
	_, n, ok := s.Scan(data)
	if ok {
		t.Fatal("garbage produced a frame")
	}
	if n != len(data) {
		t.Errorf("garbage consumed %d of %d", n, len(data))
	}
	f, _, ok := s.Scan(append([]byte{SyncByte}, frameBytes(0x10, 5)...))
	if !ok || f.Payload[0] != 5 {
		t.Errorf("no frame after sync: %+v", f)
	}
}
