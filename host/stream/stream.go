// Package stream fans decoded telemetry out to live consumers: browser
// clients over websocket and an MQTT broker.
package stream

import (
	"sync"

	"github.com/pkg/errors"

	"gobricks/host/mcu"
	"gobricks/telemetry"
)

// Point is a sample in display units, as sent to consumers.
type Point struct {
	ID       uint8   `json:"id"`
	Time     uint32  `json:"t"`
	Angle    float64 `json:"angle"`
	Estimate float64 `json:"est_angle"`
	Ref      float64 `json:"ref_angle"`
	Speed    float64 `json:"speed"`
	RefSpeed float64 `json:"ref_speed"`
	Duty     float64 `json:"duty"`
	Stalled  bool    `json:"stalled,omitempty"`
	OnTarget bool    `json:"on_target,omitempty"`
}

// PointFrom converts a sample to degrees, degrees per second and percent.
func PointFrom(s mcu.Sample) Point {
	return Point{
		ID:       s.ID,
		Time:     s.Time,
		Angle:    float64(s.Angle) / 1000,
		Estimate: float64(s.EstAngle) / 1000,
		Ref:      float64(s.RefAngle) / 1000,
		Speed:    float64(s.EstSpeed) / 1000,
		RefSpeed: float64(s.RefSpeed) / 1000,
		Duty:     float64(s.Duty) / 100,
		Stalled:  s.Flags&telemetry.FlagStalled != 0,
		OnTarget: s.Flags&telemetry.FlagOnTarget != 0,
	}
}

// Sink consumes points.
type Sink interface {
	Publish(p Point) error
	Close() error
}

// Fanout publishes to several sinks.
type Fanout struct {
	mu    sync.Mutex
	sinks []Sink
}

func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// Publish sends p to every sink and returns the first error.
func (f *Fanout) Publish(p Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, s := range f.sinks {
		if err := s.Publish(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "close sink")
		}
	}
	f.sinks = nil
	return first
}
