package protocol

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Handler processes the payload of one message. payload is positioned after
// the message ID and the handler must consume exactly its fields, since a
// frame may hold several messages.
type Handler func(msgID uint32, payload *[]byte) error

// Link is the firmware end of the connection. It parses frames from the
// host, acknowledges them and sends messages back.
type Link struct {
	next    atomic.Uint32 // expected sequence from the host
	scan    Scanner
	out     OutputBuffer
	handler Handler

	onReset func()
	flush   func()

	handlerErrors atomic.Uint32
}

// NewLink creates a link writing to out and dispatching to handler.
func NewLink(out OutputBuffer, handler Handler) *Link {
	l := &Link{out: out, handler: handler}
	l.next.Store(SeqDest)
	return l
}

// SetResetCallback sets a function called when the host restarts its
// sequence.
func (l *Link) SetResetCallback(fn func()) {
	l.onReset = fn
}

// SetFlushCallback sets a function called after each acknowledgement so it
// can be sent before any response.
func (l *Link) SetFlushCallback(fn func()) {
	l.flush = fn
}

// HandlerErrors returns the number of messages the handler failed on.
func (l *Link) HandlerErrors() uint32 {
	return l.handlerErrors.Load()
}

// Receive processes all complete frames in input.
func (l *Link) Receive(input InputBuffer) {
	for {
		f, n, ok := l.scan.Scan(input.Data())
		if !ok {
			input.Pop(n)
			return
		}
		l.frame(f)
		input.Pop(n)
	}
}

func (l *Link) frame(f Frame) {
	expected := uint8(l.next.Load())
	if f.Seq == SeqDest && expected != SeqDest {
		expected = SeqDest
		l.next.Store(SeqDest)
		if l.onReset != nil {
			l.onReset()
		}
	}
	// Out of sequence frames are acknowledged with the expected sequence
	// so the host retransmits.
	if f.Seq == expected && !f.IsAck() {
		l.next.Store(uint32(NextSeq(f.Seq)))
		if err := l.dispatch(f.Payload); err != nil {
			l.handlerErrors.Add(1)
		}
	}
	WriteAck(l.out, uint8(l.next.Load()))
	if l.flush != nil {
		l.flush()
	}
}

func (l *Link) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			return err
		}
		if l.handler == nil {
			return nil
		}
		if err := l.handler(id, &payload); err != nil {
			return err
		}
	}
	return nil
}

// Send writes one message. args encodes the fields after the ID.
func (l *Link) Send(msgID uint32, args func(OutputBuffer)) error {
	return WriteFrame(l.out, uint8(l.next.Load()), func(out OutputBuffer) {
		EncodeVLQUint(out, msgID)
		if args != nil {
			args(out)
		}
	})
}

// Reset returns to the initial sequence, as after a reconnect.
func (l *Link) Reset() {
	l.next.Store(SeqDest)
	l.scan.Resync()
	if l.onReset != nil {
		l.onReset()
	}
}
