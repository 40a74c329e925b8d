package protocol

// InputBuffer is received data waiting to be parsed.
type InputBuffer interface {
	Data() []byte
	Available() int
	// Pop drops n bytes from the front.
	Pop(n int)
}

// OutputBuffer collects data to be sent.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	// Update overwrites an already written byte.
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is an OutputBuffer with fixed storage. Output beyond
// MessageMax is dropped and counted.
type ScratchOutput struct {
	buf     [MessageMax]byte
	pos     int
	dropped int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	s.dropped += len(data) - n
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Dropped returns the number of bytes that did not fit.
func (s *ScratchOutput) Dropped() int {
	return s.dropped
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.dropped = 0
}

// FifoBuffer queues received bytes. Unread data is kept contiguous by
// moving it to the front when the tail runs out of room, so Data never
// copies.
type FifoBuffer struct {
	buf        []byte
	start, end int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count.
func (f *FifoBuffer) Write(data []byte) int {
	if len(f.buf)-f.end < len(data) && f.start > 0 {
		n := copy(f.buf, f.buf[f.start:f.end])
		f.start, f.end = 0, n
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

// Read moves up to len(data) bytes out of the queue.
func (f *FifoBuffer) Read(data []byte) int {
	n := copy(data, f.buf[f.start:f.end])
	f.Pop(n)
	return n
}

func (f *FifoBuffer) Available() int {
	return f.end - f.start
}

// Free returns how many bytes Write accepts.
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available()
}

func (f *FifoBuffer) Data() []byte {
	return f.buf[f.start:f.end]
}

func (f *FifoBuffer) Pop(n int) {
	f.start += min(n, f.Available())
	if f.start == f.end {
		f.start, f.end = 0, 0
	}
}

func (f *FifoBuffer) IsEmpty() bool {
	return f.start == f.end
}

func (f *FifoBuffer) Reset() {
	f.start, f.end = 0, 0
}
