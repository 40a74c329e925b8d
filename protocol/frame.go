package protocol

import "github.com/pkg/errors"

// ErrFrameTooLong is returned when a payload does not fit in one frame.
var ErrFrameTooLong = errors.New("frame too long")

// Frame is one received frame. Payload aliases the receive buffer and is
// only valid until the buffer is popped.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether f is an acknowledgement.
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// WriteFrame writes a frame with sequence seq whose payload is produced by
// fill.
func WriteFrame(out OutputBuffer, seq uint8, fill func(OutputBuffer)) error {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if fill != nil {
		fill(out)
	}
	n := len(out.DataSince(start)) + TrailerSize
	if n > FrameMax {
		return errors.Wrapf(ErrFrameTooLong, "%d bytes", n)
	}
	out.Update(start, uint8(n))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
	return nil
}

// WriteAck writes an empty frame acknowledging everything before seq.
func WriteAck(out OutputBuffer, seq uint8) {
	WriteFrame(out, seq, nil)
}

// Scanner finds frames in a byte stream. After a corrupt frame it skips to
// the next sync byte.
type Scanner struct {
	lost   bool
	errors uint32
}

// Errors returns the number of corrupt frames seen.
func (s *Scanner) Errors() uint32 {
	return s.errors
}

// Resync makes the scanner accept data from the start again.
func (s *Scanner) Resync() {
	s.lost = false
}

func (s *Scanner) fail() {
	s.lost = true
	s.errors++
}

// Scan returns the first complete frame in data and how many bytes of data
// it and any garbage before it used. If there is no complete frame, ok is
// false and consumed counts the garbage that can be dropped.
func (s *Scanner) Scan(data []byte) (f Frame, consumed int, ok bool) {
	pos := 0
	for pos < len(data) {
		d := data[pos:]
		if s.lost {
			i := 0
			for i < len(d) && d[i] != SyncByte {
				i++
			}
			if i == len(d) {
				return Frame{}, len(data), false
			}
			pos += i + 1
			s.lost = false
			continue
		}
		if d[0] == SyncByte {
			pos++
			continue
		}
		if len(d) < FrameMin {
			break
		}
		n := int(d[0])
		if n < FrameMin || d[1]&^SeqMask != SeqDest {
			s.fail()
			continue
		}
		if len(d) < n {
			break
		}
		if d[n-1] != SyncByte {
			s.fail()
			continue
		}
		crc := uint16(d[n-3])<<8 | uint16(d[n-2])
		if crc != CRC16(d[:n-TrailerSize]) {
			s.fail()
			continue
		}
		return Frame{Seq: d[1], Payload: d[HeaderSize : n-TrailerSize]}, pos + n, true
	}
	return Frame{}, pos, false
}
