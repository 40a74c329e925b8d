// Package telemetry records per tick servo internals and encodes them for
// transport to a host.
package telemetry

import "sync"

// Flags mark conditions of a sample.
type Flags uint8

const (
	FlagStalled Flags = 1 << iota
	FlagOnTarget
	FlagSaturated
	FlagSensorFault
	FlagDone
)

// Sample is the state of one servo at one control tick. Angles and speeds
// are in the motor frame.
type Sample struct {
	Time  uint32
	Count int32

	Angle      int64 // measured, mdeg
	EstAngle   int64
	EstSpeed   int32
	EstCurrent int32

	RefAngle int64
	RefSpeed int32
	RefAccel int32

	Torque       int32
	Proportional int32
	Integral     int32
	Derivative   int32
	Feedforward  int32

	Voltage int32
	Duty    int32

	Actuation uint8
	Flags     Flags
}

// Log is a fixed capacity ring of samples. Add never allocates; once full
// the oldest samples are overwritten.
type Log struct {
	mu    sync.Mutex
	buf   []Sample
	head  int
	n     int
	total uint32
	every uint32
}

// NewLog creates a log holding the latest capacity samples.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{buf: make([]Sample, capacity), every: 1}
}

// SetDecimation keeps only every n-th sample offered to Add.
func (l *Log) SetDecimation(n uint32) {
	if n == 0 {
		n = 1
	}
	l.mu.Lock()
	l.every = n
	l.mu.Unlock()
}

// Add offers a sample.
func (l *Log) Add(s Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if (l.total-1)%l.every != 0 {
		return
	}
	l.buf[l.head] = s
	l.head = (l.head + 1) % len(l.buf)
	if l.n < len(l.buf) {
		l.n++
	}
}

// Len returns the number of samples held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Total returns the number of samples offered since creation or Reset.
func (l *Log) Total() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Samples returns a copy of the held samples, oldest first.
func (l *Log) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Sample, 0, l.n)
	start := (l.head - l.n + len(l.buf)) % len(l.buf)
	for i := 0; i < l.n; i++ {
		out = append(out, l.buf[(start+i)%len(l.buf)])
	}
	return out
}

// Drain returns the held samples, oldest first, and empties the log.
func (l *Log) Drain() []Sample {
	out := l.Samples()
	l.mu.Lock()
	l.n = 0
	l.mu.Unlock()
	return out
}

// Latest returns the most recent sample.
func (l *Log) Latest() (Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == 0 {
		return Sample{}, false
	}
	return l.buf[(l.head-1+len(l.buf))%len(l.buf)], true
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head, l.n, l.total = 0, 0, 0
}
