package core

// Timer is a scheduled callback. The handler returns SF_DONE to drop the
// timer or SF_RESCHEDULE after moving WakeTime forward.
type Timer struct {
	WakeTime uint32 // ms
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time. Each servo pipeline owns a
// timer, so all control ticks due at one instant run back to back in a
// single Dispatch.
type Scheduler struct {
	list *Timer
	now  uint32
}

// before reports whether a is earlier than b on the wrapping millisecond clock.
func before(a, b uint32) bool {
	return int32(a-b) < 0
}

// Add inserts t in wake time order. Timers with equal wake times run in the
// order they were added.
func (s *Scheduler) Add(t *Timer) {
	state := lockIRQ()
	defer unlockIRQ(state)
	s.insert(t)
}

func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || before(t.WakeTime, s.list.WakeTime) {
		t.Next = s.list
		s.list = t
		return
	}
	cur := s.list
	for cur.Next != nil && !before(t.WakeTime, cur.Next.WakeTime) {
		cur = cur.Next
	}
	t.Next = cur.Next
	cur.Next = t
}

// Remove unlinks t. It is a no-op if t is not scheduled.
func (s *Scheduler) Remove(t *Timer) {
	state := lockIRQ()
	defer unlockIRQ(state)
	for p := &s.list; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// Pending returns the number of scheduled timers.
func (s *Scheduler) Pending() int {
	n := 0
	for t := s.list; t != nil; t = t.Next {
		n++
	}
	return n
}

// NextWake returns the earliest wake time, if any timer is scheduled.
func (s *Scheduler) NextWake() (uint32, bool) {
	if s.list == nil {
		return 0, false
	}
	return s.list.WakeTime, true
}

// Now returns the time passed to the latest Dispatch.
func (s *Scheduler) Now() uint32 {
	return s.now
}

// Dispatch runs every timer due at now and returns how many handlers ran.
func (s *Scheduler) Dispatch(now uint32) int {
	state := lockIRQ()
	defer unlockIRQ(state)

	s.now = now
	ran := 0
	for s.list != nil && !before(now, s.list.WakeTime) {
		t := s.list
		s.list = t.Next
		t.Next = nil

		ran++
		if t.Handler(t) == SF_RESCHEDULE {
			s.insert(t)
		}
	}
	return ran
}
