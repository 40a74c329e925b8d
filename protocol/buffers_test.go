package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBufferPop(t *testing.T) {
	in := NewSliceInputBuffer([]byte{10, 20, 30, 40})
	in.Pop(3)
	if in.Available() != 1 || in.Data()[0] != 40 {
		t.Fatalf("after Pop(3): %v", in.Data())
	}
	in.Pop(5)
	if in.Available() != 0 {
		t.Errorf("Pop past the end left %d bytes", in.Available())
	}
}

// A frame whose length byte is patched after the payload is known.
func TestScratchOutputPatch(t *testing.T) {
	out := NewScratchOutput()
	out.Output([]byte{0, SeqDest})
	start := out.CurPosition()
	EncodeVLQString(out, "run speed=90")
	out.Update(0, byte(out.CurPosition()))

	got := out.Result()
	if int(got[0]) != len(got) {
		t.Errorf("length byte %d, frame is %d bytes", got[0], len(got))
	}
	body := out.DataSince(start)
	if s, err := DecodeVLQString(&body); err != nil || s != "run speed=90" {
		t.Errorf("payload %q, %v", s, err)
	}

	out.Reset()
	if out.CurPosition() != 0 || len(out.Result()) != 0 {
		t.Error("Reset kept data")
	}
}

func TestScratchOutputDropped(t *testing.T) {
	out := NewScratchOutput()
	out.Output(make([]byte, MessageMax-1))
	out.Output([]byte{1, 2, 3})
	if out.Dropped() != 2 {
		t.Errorf("dropped %d bytes, want 2", out.Dropped())
	}
	if out.CurPosition() != MessageMax {
		t.Errorf("position %d, want %d", out.CurPosition(), MessageMax)
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)
	if !fifo.IsEmpty() || fifo.Free() != 10 {
		t.Fatal("new FIFO not empty")
	}

	// Bytes arrive in pieces and are consumed frame by frame.
	fifo.Write([]byte{1, 2, 3})
	fifo.Write([]byte{4, 5})
	if !bytes.Equal(fifo.Data(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("data %v", fifo.Data())
	}
	got := make([]byte, 3)
	if n := fifo.Read(got); n != 3 || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Read gave %d %v", n, got)
	}

	// Writing past the tail compacts the unread bytes to the front.
	if n := fifo.Write([]byte{6, 7, 8, 9, 10, 11, 12}); n != 7 {
		t.Errorf("wrote %d bytes, want 7", n)
	}
	if !bytes.Equal(fifo.Data(), []byte{4, 5, 6, 7, 8, 9, 10, 11, 12}) {
		t.Errorf("after compaction %v", fifo.Data())
	}
	if n := fifo.Write([]byte{13, 14}); n != 1 || fifo.Free() != 0 {
		t.Errorf("full FIFO accepted %d bytes, free %d", n, fifo.Free())
	}

	fifo.Pop(fifo.Available())
	if !fifo.IsEmpty() {
		t.Error("FIFO not empty after popping everything")
	}
	if n := fifo.Write(make([]byte, 12)); n != 10 {
		t.Errorf("wrote %d bytes into an empty size 10 FIFO", n)
	}
}
