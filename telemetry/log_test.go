package telemetry

import "testing"

func TestLogRing(t *testing.T) {
	l := NewLog(4)
	if _, ok := l.Latest(); ok {
		t.Fatal("empty log has a latest sample")
	}
	for i := uint32(0); i < 6; i++ {
		l.Add(Sample{Time: i})
	}
	if l.Len() != 4 || l.Total() != 6 {
		t.Fatalf("len %d total %d", l.Len(), l.Total())
	}
	s := l.Samples()
	for i, smp := range s {
		if smp.Time != uint32(i+2) {
			t.Errorf("sample %d has time %d", i, smp.Time)
		}
	}
	if last, _ := l.Latest(); last.Time != 5 {
		t.Errorf("latest time %d", last.Time)
	}
}

func TestLogDecimation(t *testing.T) {
	l := NewLog(10)
	l.SetDecimation(3)
	for i := uint32(0); i < 9; i++ {
		l.Add(Sample{Time: i})
	}
	s := l.Drain()
	if len(s) != 3 || s[0].Time != 0 || s[1].Time != 3 || s[2].Time != 6 {
		t.Errorf("decimated samples %+v", s)
	}
	if l.Len() != 0 {
		t.Errorf("drained log holds %d", l.Len())
	}
	l.Reset()
	if l.Total() != 0 {
		t.Errorf("total after reset %d", l.Total())
	}
}
