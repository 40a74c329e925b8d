package command

import (
	"testing"

	"github.com/pkg/errors"

	"gobricks/core"
)

func TestParseLine(t *testing.T) {
	l, err := ParseLine("  Run_Target speed=500 target=-90.5 then=hold  # to the stop")
	if err != nil {
		t.Fatal(err)
	}
	if l.Verb != "run_target" || len(l.Args) != 3 {
		t.Fatalf("parsed %+v", l)
	}
	if v, _ := l.Lookup("target"); v != "-90.5" {
		t.Errorf("target = %q", v)
	}
	if v, _ := l.Milli("target", 0); v != -90500 {
		t.Errorf("target milli = %d", v)
	}
	if v, _ := l.Milli("missing", 7); v != 7 {
		t.Errorf("default = %d", v)
	}
}

func TestParseLineEmpty(t *testing.T) {
	for _, s := range []string{"", "   ", "# comment", "\t\r\n"} {
		l, err := ParseLine(s)
		if err != nil || !l.IsEmpty() {
			t.Errorf("ParseLine(%q) = %+v, %v", s, l, err)
		}
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, s := range []string{
		"speed=5",
		"run speed",
		"run =5",
		"run speed=",
		"run speed=1 speed=2",
	} {
		if _, err := ParseLine(s); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("ParseLine(%q) error = %v", s, err)
		}
	}
}

func TestParseMilli(t *testing.T) {
	testCases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"90", 90000},
		{"-90", -90000},
		{"+1.5", 1500},
		{"0.001", 1},
		{".25", 250},
		{"12.", 12000},
		{"-0.125", -125},
	}
	for _, tc := range testCases {
		got, err := ParseMilli(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseMilli(%q) = %d, %v, expected %d", tc.in, got, err, tc.want)
		}
	}
	for _, bad := range []string{"", "-", ".", "1.2345", "1e3", "12a", "99999999999999999"} {
		if _, err := ParseMilli(bad); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("ParseMilli(%q) error = %v", bad, err)
		}
	}
}

func TestLineInt(t *testing.T) {
	l, _ := ParseLine("run_time time=1500 speed=1.5")
	if v, err := l.Int("time", 0); err != nil || v != 1500 {
		t.Errorf("time = %d, %v", v, err)
	}
	if _, err := l.Int("speed", 0); err == nil {
		t.Error("fractional value accepted as integer")
	}
}

func TestFormatMilli(t *testing.T) {
	testCases := map[int64]string{
		0:      "0.000",
		90000:  "90.000",
		-1:     "-0.001",
		-90500: "-90.500",
		1234:   "1.234",
	}
	for v, want := range testCases {
		if got := formatMilli(v); got != want {
			t.Errorf("formatMilli(%d) = %q, expected %q", v, got, want)
		}
	}
}
