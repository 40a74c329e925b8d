package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"gobricks/config"
	"gobricks/host/analysis"
)

func newTestBench(t *testing.T) *bench {
	t.Helper()
	b, err := newBench(config.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newBench: %v", err)
	}
	return b
}

func TestBenchScript(t *testing.T) {
	b := newTestBench(t)
	script := `# move and report
run_target speed=500 target=90
wait timeout=3000
state
`
	var out bytes.Buffer
	if err := b.Script(strings.NewReader(script), &out); err != nil {
		t.Fatalf("Script: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "ok" || !strings.HasPrefix(lines[1], "done t=") {
		t.Fatalf("output %q", out.String())
	}
	if !strings.Contains(lines[2], "mode=hold") {
		t.Errorf("state %q", lines[2])
	}
	if d := b.servos[0].Angle() - 90000; d > 10000 || d < -10000 {
		t.Errorf("angle %d", b.servos[0].Angle())
	}
	if len(b.samples) == 0 {
		t.Fatal("no samples collected")
	}
	last := b.samples[len(b.samples)-1]
	if last.Time+10 < b.rig.Now() {
		t.Errorf("last sample at %d, clock at %d", last.Time, b.rig.Now())
	}
}

func TestBenchSleep(t *testing.T) {
	b := newTestBench(t)
	if _, err := b.Exec("sleep ms=1000"); err != nil {
		t.Fatal(err)
	}
	if now := b.rig.Now(); now != 1000 {
		t.Errorf("clock %d after sleep", now)
	}
	// 1000 ms at one sample per 5 ms control period, more than a log
	// ring drain interval holds.
	if n := len(b.samples); n != 200 {
		t.Errorf("%d samples, want 200", n)
	}
}

func TestBenchErrors(t *testing.T) {
	b := newTestBench(t)
	for _, line := range []string{
		"sleep",
		"sleep ms=-5",
		"wait id=7",
		"wait bogus=1",
		"run speed=5000",
	} {
		if _, err := b.Exec(line); err == nil {
			t.Errorf("%q accepted", line)
		}
	}
	if _, err := b.Exec("run speed=100"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Exec("wait timeout=200"); err == nil {
		t.Error("endless run reported done")
	}
	err := b.Script(strings.NewReader("stop\nfly away\n"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("script error %v", err)
	}
}

func TestAnalyzeLog(t *testing.T) {
	b := newTestBench(t)
	if err := b.Script(strings.NewReader("run_angle speed=300 angle=180\nwait\n"), &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "log.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := analysis.WriteCSV(f, b.samples); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var out bytes.Buffer
	if err := runAnalyze([]string{path}, &out); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "0 ") {
		t.Errorf("summary %q", out.String())
	}
}

func TestModelTable(t *testing.T) {
	var out bytes.Buffer
	if err := runModel(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "technic_m_angular") {
		t.Errorf("table lacks the default device:\n%s", out.String())
	}
}
