package analysis

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"gobricks/host/mcu"
	"gobricks/telemetry"
)

// Columns of a sample log, in file order.
var Columns = []string{
	"id", "time", "count", "angle", "est_angle", "est_speed", "est_current",
	"ref_angle", "ref_speed", "ref_accel", "torque", "p", "i", "d", "ff",
	"voltage", "duty", "actuation", "flags",
}

// Writer writes samples as CSV rows.
type Writer struct {
	w   *csv.Writer
	row []string
}

// NewWriter writes the header and returns a writer for the rows.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	return &Writer{w: cw, row: make([]string, len(Columns))}, nil
}

func (w *Writer) Write(s mcu.Sample) error {
	vals := []int64{
		int64(s.ID), int64(s.Time), int64(s.Count), s.Angle, s.EstAngle,
		int64(s.EstSpeed), int64(s.EstCurrent), s.RefAngle, int64(s.RefSpeed),
		int64(s.RefAccel), int64(s.Torque), int64(s.Proportional),
		int64(s.Integral), int64(s.Derivative), int64(s.Feedforward),
		int64(s.Voltage), int64(s.Duty), int64(s.Actuation), int64(s.Flags),
	}
	for i, v := range vals {
		w.row[i] = strconv.FormatInt(v, 10)
	}
	return w.w.Write(w.row)
}

// Flush writes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// WriteCSV writes a whole log.
func WriteCSV(w io.Writer, samples []mcu.Sample) error {
	cw, err := NewWriter(w)
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(s); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// ReadCSV reads a log written by WriteCSV.
func ReadCSV(r io.Reader) ([]mcu.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i, c := range Columns {
		if header[i] != c {
			return nil, errors.Errorf("column %d is %q, expected %q", i, header[i], c)
		}
	}
	var out []mcu.Sample
	vals := make([]int64, len(Columns))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		for i, f := range rec {
			if vals[i], err = strconv.ParseInt(f, 10, 64); err != nil {
				return nil, errors.Wrapf(err, "line %d column %s", line, Columns[i])
			}
		}
		out = append(out, mcu.Sample{
			ID: uint8(vals[0]),
			Sample: telemetry.Sample{
				Time: uint32(vals[1]), Count: int32(vals[2]),
				Angle: vals[3], EstAngle: vals[4],
				EstSpeed: int32(vals[5]), EstCurrent: int32(vals[6]),
				RefAngle: vals[7], RefSpeed: int32(vals[8]), RefAccel: int32(vals[9]),
				Torque: int32(vals[10]), Proportional: int32(vals[11]),
				Integral: int32(vals[12]), Derivative: int32(vals[13]),
				Feedforward: int32(vals[14]), Voltage: int32(vals[15]),
				Duty: int32(vals[16]), Actuation: uint8(vals[17]),
				Flags: telemetry.Flags(vals[18]),
			},
		})
	}
}
