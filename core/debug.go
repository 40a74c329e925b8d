package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event is one entry of an EventRing.
type Event struct {
	Kind  uint8
	ID    uint8  // servo index
	Time  uint32 // ms
	Value int64
	Aux   int32
}

// Event kinds
const (
	EvtCommand     = 1 // command accepted, Value = mode, Aux = stop policy
	EvtRejected    = 2 // command or setting rejected
	EvtStall       = 3 // stall raised, Value = angle
	EvtOnTarget    = 4 // position command complete, Value = angle
	EvtSensorFault = 5 // encoder read failed, Value = fault count
	EvtBrakeDone   = 6 // brake time elapsed, coasting
	EvtLateTick    = 7 // control tick ran late, Aux = ms late
	EvtReset       = 8 // angle redefined, Value = new angle
	EvtDriverFault = 9 // motor write failed, Value = fault count
)

// EventRingSize is the number of events kept for post-mortem dumps.
const EventRingSize = 32

// EventRing records servo events without allocating. It is written from the
// control tick and dumped from task context.
type EventRing struct {
	events [EventRingSize]Event
	head   uint8
	total  uint32
}

// Record stores an event, overwriting the oldest one when full.
func (r *EventRing) Record(kind, id uint8, time uint32, value int64, aux int32) {
	state := lockIRQ()
	r.events[r.head] = Event{Kind: kind, ID: id, Time: time, Value: value, Aux: aux}
	r.head = (r.head + 1) % EventRingSize
	r.total++
	unlockIRQ(state)
}

// Total returns the number of events recorded since the last Clear.
func (r *EventRing) Total() uint32 {
	return r.total
}

// Events returns the stored events from oldest to newest.
func (r *EventRing) Events() []Event {
	state := lockIRQ()
	defer unlockIRQ(state)
	n := int(r.total)
	if n > EventRingSize {
		n = EventRingSize
	}
	out := make([]Event, 0, n)
	start := (int(r.head) - n + EventRingSize) % EventRingSize
	for i := 0; i < n; i++ {
		out = append(out, r.events[(start+i)%EventRingSize])
	}
	return out
}

// Last returns the most recent event of the given kind.
func (r *EventRing) Last(kind uint8) (Event, bool) {
	evs := r.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Kind == kind {
			return evs[i], true
		}
	}
	return Event{}, false
}

// Clear drops all events.
func (r *EventRing) Clear() {
	state := lockIRQ()
	r.events = [EventRingSize]Event{}
	r.head = 0
	r.total = 0
	unlockIRQ(state)
}

// EventName returns the dump label of an event kind.
func EventName(kind uint8) string {
	switch kind {
	case EvtCommand:
		return "COMMAND"
	case EvtRejected:
		return "REJECTED"
	case EvtStall:
		return "STALL"
	case EvtOnTarget:
		return "ON_TARGET"
	case EvtSensorFault:
		return "SENSOR_FAULT!"
	case EvtBrakeDone:
		return "BRAKE_DONE"
	case EvtLateTick:
		return "LATE_TICK!"
	case EvtReset:
		return "RESET_ANGLE"
	case EvtDriverFault:
		return "DRIVER_FAULT!"
	}
	return "UNKNOWN"
}

// Dump writes the ring from oldest to newest, one line per event.
func (r *EventRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("[EVENTS] === Servo Event Dump ===")
	w("[EVENTS] total=" + itoa(int64(r.total)))
	for _, evt := range r.Events() {
		w("[EVENTS] " + EventName(evt.Kind) +
			" id=" + itoa(int64(evt.ID)) +
			" t=" + itoa(int64(evt.Time)) +
			" v=" + itoa(evt.Value) +
			" aux=" + itoa(int64(evt.Aux)))
	}
	w("[EVENTS] === End Dump ===")
}
