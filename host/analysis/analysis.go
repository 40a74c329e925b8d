// Package analysis summarizes recorded servo logs: tracking error,
// speeds and the dominant oscillation of the error signal.
package analysis

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"gobricks/host/mcu"
	"gobricks/telemetry"
)

// Summary describes one servo's log. Angles are in degrees, speeds in
// degrees per second.
type Summary struct {
	ID       uint8
	Samples  int
	Duration float64 // s
	Period   float64 // s between samples

	RMSError  float64 // reference minus estimate
	MaxError  float64
	MeanSpeed float64
	PeakSpeed float64

	// DominantHz is the strongest non-zero frequency in the tracking
	// error, with its share of the error power.
	DominantHz    float64
	DominantShare float64

	Saturated float64 // fraction of samples with saturated output
	Stalled   float64
}

// Split groups samples by servo id, keeping their order.
func Split(samples []mcu.Sample) map[uint8][]mcu.Sample {
	out := map[uint8][]mcu.Sample{}
	for _, s := range samples {
		out[s.ID] = append(out[s.ID], s)
	}
	return out
}

// Summarize analyzes samples of a single servo.
func Summarize(samples []mcu.Sample) (Summary, error) {
	if len(samples) < 2 {
		return Summary{}, errors.New("need at least two samples")
	}
	n := len(samples)
	sum := Summary{ID: samples[0].ID, Samples: n}

	span := float64(samples[n-1].Time-samples[0].Time) / 1000
	if span <= 0 {
		return sum, errors.New("samples do not advance in time")
	}
	sum.Duration = span
	sum.Period = span / float64(n-1)

	errs := make([]float64, n)
	speeds := make([]float64, n)
	var sat, stall int
	for i, s := range samples {
		if s.ID != sum.ID {
			return sum, errors.Errorf("samples of servo %d and %d mixed", sum.ID, s.ID)
		}
		errs[i] = float64(s.RefAngle-s.EstAngle) / 1000
		speeds[i] = math.Abs(float64(s.EstSpeed) / 1000)
		sum.MaxError = math.Max(sum.MaxError, math.Abs(errs[i]))
		sum.PeakSpeed = math.Max(sum.PeakSpeed, speeds[i])
		if s.Flags&telemetry.FlagSaturated != 0 {
			sat++
		}
		if s.Flags&telemetry.FlagStalled != 0 {
			stall++
		}
	}
	sum.RMSError = rms(errs)
	sum.MeanSpeed = stat.Mean(speeds, nil)
	sum.Saturated = float64(sat) / float64(n)
	sum.Stalled = float64(stall) / float64(n)
	sum.DominantHz, sum.DominantShare = dominant(errs, sum.Period)
	return sum, nil
}

func rms(x []float64) float64 {
	var sq float64
	for _, v := range x {
		sq += v * v
	}
	return math.Sqrt(sq / float64(len(x)))
}

// dominant returns the frequency of the largest spectral peak of x after
// removing its mean, and the fraction of power in that bin.
func dominant(x []float64, period float64) (hz, share float64) {
	mean := stat.Mean(x, nil)
	centered := make([]float64, len(x))
	for i, v := range x {
		centered[i] = v - mean
	}
	fft := fourier.NewFFT(len(centered))
	coeff := fft.Coefficients(nil, centered)

	var total, best float64
	bin := 0
	for k := 1; k < len(coeff); k++ {
		p := real(coeff[k])*real(coeff[k]) + imag(coeff[k])*imag(coeff[k])
		total += p
		if p > best {
			best, bin = p, k
		}
	}
	if total == 0 {
		return 0, 0
	}
	return fft.Freq(bin) / period, best / total
}
