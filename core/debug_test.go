package core

import (
	"strings"
	"testing"
)

func TestEventRingOverwrite(t *testing.T) {
	var r EventRing
	for i := 0; i < EventRingSize+5; i++ {
		r.Record(EvtCommand, 0, uint32(i), int64(i), 0)
	}
	evs := r.Events()
	if len(evs) != EventRingSize {
		t.Fatalf("Expected %d events, got %d", EventRingSize, len(evs))
	}
	if evs[0].Time != 5 || evs[len(evs)-1].Time != EventRingSize+4 {
		t.Errorf("Expected events 5..%d, got %d..%d", EventRingSize+4, evs[0].Time, evs[len(evs)-1].Time)
	}
	if r.Total() != EventRingSize+5 {
		t.Errorf("Expected total %d, got %d", EventRingSize+5, r.Total())
	}
}

func TestEventRingLastAndDump(t *testing.T) {
	var r EventRing
	r.Record(EvtStall, 1, 100, -90000, 0)
	r.Record(EvtCommand, 1, 105, 3, 1)

	evt, ok := r.Last(EvtStall)
	if !ok || evt.Value != -90000 {
		t.Errorf("Expected stall event with value -90000, got %+v (%v)", evt, ok)
	}
	if _, ok := r.Last(EvtSensorFault); ok {
		t.Error("Unexpected sensor fault event")
	}

	var lines []string
	r.Dump(func(s string) { lines = append(lines, s) })
	if len(lines) != 4 {
		t.Fatalf("Expected 4 dump lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[2], "STALL id=1 t=100 v=-90000") {
		t.Errorf("Unexpected dump line %q", lines[2])
	}

	r.Clear()
	if len(r.Events()) != 0 {
		t.Error("Expected empty ring after Clear")
	}
}

func TestItoa(t *testing.T) {
	cases := map[int64]string{
		0:                    "0",
		7:                    "7",
		-42:                  "-42",
		9223372036854775807:  "9223372036854775807",
		-9223372036854775808: "-9223372036854775808",
	}
	for in, want := range cases {
		if got := itoa(in); got != want {
			t.Errorf("itoa(%d) = %q, want %q", in, got, want)
		}
	}
}
