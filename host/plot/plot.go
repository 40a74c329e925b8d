// Package plot renders servo logs as PNG charts.
package plot

import (
	"bufio"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"gobricks/host/mcu"
)

var (
	colorMeasured  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorEstimate  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	colorReference = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	colorDuty      = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// series extracts one value per sample, scaled to display units.
type series struct {
	name  string
	color color.Color
	value func(s mcu.Sample) float64
}

func xys(samples []mcu.Sample, f func(mcu.Sample) float64) plotter.XYs {
	pts := make(plotter.XYs, len(samples))
	t0 := samples[0].Time
	for i, s := range samples {
		pts[i].X = float64(s.Time-t0) / 1000
		pts[i].Y = f(s)
	}
	return pts
}

func chart(samples []mcu.Sample, title, ylabel string, lines ...series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	for _, l := range lines {
		line, err := plotter.NewLine(xys(samples, l.value))
		if err != nil {
			return nil, errors.Wrap(err, l.name)
		}
		line.LineStyle.Width = vg.Points(1.2)
		line.LineStyle.Color = l.color
		p.Add(line)
		p.Legend.Add(l.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// Charts builds the angle, speed and duty charts of one servo's log.
func Charts(samples []mcu.Sample) ([]*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples")
	}
	angle, err := chart(samples, "Angle", "angle (deg)",
		series{"measured", colorMeasured, func(s mcu.Sample) float64 { return float64(s.Angle) / 1000 }},
		series{"estimate", colorEstimate, func(s mcu.Sample) float64 { return float64(s.EstAngle) / 1000 }},
		series{"reference", colorReference, func(s mcu.Sample) float64 { return float64(s.RefAngle) / 1000 }},
	)
	if err != nil {
		return nil, err
	}
	speed, err := chart(samples, "Speed", "speed (deg/s)",
		series{"estimate", colorEstimate, func(s mcu.Sample) float64 { return float64(s.EstSpeed) / 1000 }},
		series{"reference", colorReference, func(s mcu.Sample) float64 { return float64(s.RefSpeed) / 1000 }},
	)
	if err != nil {
		return nil, err
	}
	duty, err := chart(samples, "Actuation", "duty (%)",
		series{"duty", colorDuty, func(s mcu.Sample) float64 { return float64(s.Duty) / 100 }},
	)
	if err != nil {
		return nil, err
	}
	return []*plot.Plot{angle, speed, duty}, nil
}

// WritePNG stacks the charts of samples vertically into one PNG image.
func WritePNG(w io.Writer, samples []mcu.Sample, width, height vg.Length) error {
	plots, err := Charts(samples)
	if err != nil {
		return err
	}
	c := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(96))
	dc := draw.New(c)
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadX: vg.Millimeter, PadY: vg.Millimeter}
	grid := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		grid[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, dc)
	for i, p := range plots {
		p.Draw(canvases[i][0])
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return errors.Wrap(err, "encode png")
	}
	return nil
}

// SavePNG writes the charts to filename.
func SavePNG(filename string, samples []mcu.Sample) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create png")
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := WritePNG(bw, samples, 8*vg.Inch, 9*vg.Inch); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "write png")
	}
	return f.Close()
}
