package protocol

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("transport closed")
)

// DefaultAckTimeout is how long Send waits for the acknowledgement.
const DefaultAckTimeout = 2 * time.Second

// Message is a received message with its ID decoded.
type Message struct {
	Seq     uint8
	ID      uint32
	Payload []byte // fields after the ID, owned by the receiver
}

// HostTransport is the host end of the connection. A background goroutine
// reads the port; acknowledgements complete Send and messages are delivered
// to the handler and to Receive.
type HostTransport struct {
	port io.ReadWriteCloser
	seq  atomic.Uint32

	in   *FifoBuffer
	scan Scanner

	acks     chan uint8
	messages chan Message
	handler  func(Message)

	writeMu sync.Mutex
	out     *ScratchOutput

	corrupt atomic.Uint32

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// NewHostTransport starts reading port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:     port,
		in:       NewFifoBuffer(4 * FrameMax),
		acks:     make(chan uint8, 1),
		messages: make(chan Message, 64),
		out:      NewScratchOutput(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.seq.Store(SeqDest)
	go t.readLoop()
	return t
}

// SetHandler sets a function receiving every message as it arrives. It
// must be called before the firmware starts sending.
func (t *HostTransport) SetHandler(fn func(Message)) {
	t.handler = fn
}

// Send writes one message and waits for its acknowledgement.
func (t *HostTransport) Send(msgID uint32, args func(OutputBuffer)) error {
	return t.SendTimeout(msgID, args, DefaultAckTimeout)
}

func (t *HostTransport) SendTimeout(msgID uint32, args func(OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(t.seq.Load())
	t.out.Reset()
	err := WriteFrame(t.out, seq, func(out OutputBuffer) {
		EncodeVLQUint(out, msgID)
		if args != nil {
			args(out)
		}
	})
	if err != nil {
		return err
	}
	if t.out.Dropped() > 0 {
		return errors.Wrapf(ErrFrameTooLong, "message %d", msgID)
	}
	if _, err := t.port.Write(t.out.Result()); err != nil {
		return errors.Wrap(err, "write frame")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-t.acks:
			if ack != NextSeq(seq) {
				// An acknowledgement for an earlier frame.
				continue
			}
			t.seq.Store(uint32(ack))
			return nil
		case <-timer.C:
			return errors.Wrapf(ErrTimeout, "no ack for sequence %#02x", seq)
		case <-t.done:
			return ErrClosed
		}
	}
}

// Receive returns the next message not yet received.
func (t *HostTransport) Receive(timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.messages:
		return m, nil
	case <-timer.C:
		return Message{}, errors.Wrap(ErrTimeout, "receive")
	case <-t.done:
		return Message{}, ErrClosed
	}
}

// Messages exposes the receive queue.
func (t *HostTransport) Messages() <-chan Message {
	return t.messages
}

// Done is closed when the read loop has ended.
func (t *HostTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the read loop.
func (t *HostTransport) Err() error {
	select {
	case <-t.done:
		return t.readErr
	default:
		return nil
	}
}

// Sequence returns the sequence number of the next frame.
func (t *HostTransport) Sequence() uint8 {
	return uint8(t.seq.Load())
}

// Errors returns the number of corrupt frames received.
func (t *HostTransport) Errors() uint32 {
	return t.corrupt.Load()
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			for data := buf[:n]; len(data) > 0; {
				w := t.in.Write(data)
				data = data[w:]
				t.process()
				if w == 0 && t.in.Free() == 0 {
					// A full buffer without a frame is garbage.
					t.in.Reset()
					t.scan.fail()
					t.corrupt.Store(t.scan.Errors())
				}
			}
		}
		if err != nil {
			select {
			case <-t.stop:
			default:
				if err != io.EOF {
					t.readErr = errors.Wrap(err, "read port")
				}
			}
			return
		}
	}
}

func (t *HostTransport) process() {
	for {
		f, n, ok := t.scan.Scan(t.in.Data())
		t.corrupt.Store(t.scan.Errors())
		if !ok {
			t.in.Pop(n)
			return
		}
		t.dispatch(f)
		t.in.Pop(n)
	}
}

func (t *HostTransport) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Seq:
		default:
			// Replace a stale acknowledgement.
			select {
			case <-t.acks:
			default:
			}
			t.acks <- f.Seq
		}
		return
	}
	payload := append([]byte(nil), f.Payload...)
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			return
		}
		// Messages are delivered whole; one message per frame is sent.
		m := Message{Seq: f.Seq, ID: id, Payload: payload}
		payload = nil
		if t.handler != nil {
			t.handler(m)
		}
		select {
		case t.messages <- m:
		default:
			// Drop the oldest so a slow reader sees recent data.
			select {
			case <-t.messages:
			default:
			}
			t.messages <- m
		}
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}
