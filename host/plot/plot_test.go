package plot

import (
	"bytes"
	"path/filepath"
	"testing"

	"gonum.org/v1/plot/vg"

	"gobricks/host/mcu"
	"gobricks/telemetry"
)

func ramp() []mcu.Sample {
	var out []mcu.Sample
	for i := 0; i < 50; i++ {
		out = append(out, mcu.Sample{Sample: telemetry.Sample{
			Time:     uint32(i * 5),
			Angle:    int64(i * 1000),
			EstAngle: int64(i * 990),
			RefAngle: int64(i * 1000),
			EstSpeed: 200000,
			RefSpeed: 200000,
			Duty:     int32(i * 100),
		}})
	}
	return out
}

func TestCharts(t *testing.T) {
	plots, err := Charts(ramp())
	if err != nil {
		t.Fatal(err)
	}
	if len(plots) != 3 {
		t.Fatalf("%d charts", len(plots))
	}
	if plots[0].X.Max < 0.24 || plots[0].Y.Max < 49 {
		t.Errorf("angle chart range x %.3f y %.3f", plots[0].X.Max, plots[0].Y.Max)
	}
	if _, err := Charts(nil); err == nil {
		t.Error("charted an empty log")
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, ramp(), 4*vg.Inch, 6*vg.Inch); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestSavePNG(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out", "log.png")
	if err := SavePNG(name, ramp()); err != nil {
		t.Fatal(err)
	}
}
