package analysis

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gobricks/host/mcu"
	"gobricks/telemetry"
)

// sineLog is 1 s of 5 ms samples whose tracking error oscillates at hz
// with amplitude amp degrees.
func sineLog(hz, amp float64) []mcu.Sample {
	var out []mcu.Sample
	for i := 0; i < 200; i++ {
		t := float64(i) * 0.005
		e := amp * math.Sin(2*math.Pi*hz*t)
		s := telemetry.Sample{
			Time:     uint32(1000 + i*5),
			EstAngle: int64(i) * 500,
			EstSpeed: 100000,
		}
		s.RefAngle = s.EstAngle + int64(math.Round(e*1000))
		if i%4 == 0 {
			s.Flags = telemetry.FlagSaturated
		}
		out = append(out, mcu.Sample{ID: 1, Sample: s})
	}
	return out
}

func TestSummarize(t *testing.T) {
	sum, err := Summarize(sineLog(4, 2))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Samples != 200 || math.Abs(sum.Duration-0.995) > 1e-9 || math.Abs(sum.Period-0.005) > 1e-9 {
		t.Errorf("timing %+v", sum)
	}
	if math.Abs(sum.DominantHz-4) > 0.1 || sum.DominantShare < 0.9 {
		t.Errorf("dominant %.3f Hz share %.3f", sum.DominantHz, sum.DominantShare)
	}
	if math.Abs(sum.RMSError-2/math.Sqrt2) > 0.02 {
		t.Errorf("rms error %.4f", sum.RMSError)
	}
	if math.Abs(sum.MaxError-2) > 0.01 {
		t.Errorf("max error %.4f", sum.MaxError)
	}
	if sum.MeanSpeed != 100 || sum.PeakSpeed != 100 {
		t.Errorf("speeds %.1f %.1f", sum.MeanSpeed, sum.PeakSpeed)
	}
	if sum.Saturated != 0.25 || sum.Stalled != 0 {
		t.Errorf("saturated %.3f stalled %.3f", sum.Saturated, sum.Stalled)
	}
}

func TestSummarizeErrors(t *testing.T) {
	if _, err := Summarize(nil); err == nil {
		t.Error("empty log accepted")
	}
	log := sineLog(1, 1)
	log[3].ID = 2
	if _, err := Summarize(log); err == nil {
		t.Error("mixed servos accepted")
	}
	if parts := Split(log); len(parts) != 2 || len(parts[1]) != 199 {
		t.Errorf("split into %d groups", len(parts))
	}
}

func TestCSVRoundTrip(t *testing.T) {
	in := sineLog(2, 1)[:10]
	in[5].Count = -7
	in[5].Duty = -10000
	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "id,time,count,") {
		t.Errorf("header %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	out, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("read %d rows", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("row %d: %+v != %+v", i, out[i], in[i])
		}
	}
}

func TestReadCSVRejectsOtherFiles(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a,b\n1,2\n")); err == nil {
		t.Error("foreign csv accepted")
	}
}
