package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// Spectrum is the one-sided amplitude spectrum of a uniformly sampled series.
type Spectrum struct {
	Freqs      []float64
	Amplitudes []float64
}

// PowerSpectrum removes the mean of data, sampled every dt, and returns its
// amplitude per frequency in Hz.
func PowerSpectrum(data []float64, dt float64) (*Spectrum, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: spectrum needs at least two samples", dynamo.ErrInvalidArgument)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: non-positive sample step %g", dynamo.ErrInvalidArgument, dt)
	}

	centered := make([]float64, len(data))
	copy(centered, data)
	floats.AddConst(-stat.Mean(data, nil), centered)

	fft := fourier.NewFFT(len(centered))
	coeff := fft.Coefficients(nil, centered)
	spec := &Spectrum{
		Freqs:      make([]float64, len(coeff)),
		Amplitudes: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		spec.Freqs[i] = fft.Freq(i) / dt
		spec.Amplitudes[i] = cmplx.Abs(c)
	}
	return spec, nil
}

// Dominant returns the frequency with the largest amplitude, ignoring DC.
func (s *Spectrum) Dominant() float64 {
	if len(s.Amplitudes) < 2 {
		return 0
	}
	return s.Freqs[1+floats.MaxIdx(s.Amplitudes[1:])]
}

// UniformStep returns the sample step of ts, or an error when the samples
// are not evenly spaced within tol.
func UniformStep(ts []float64, tol float64) (float64, error) {
	if len(ts) < 2 {
		return 0, fmt.Errorf("%w: need at least two samples", dynamo.ErrInvalidArgument)
	}
	dt := (ts[len(ts)-1] - ts[0]) / float64(len(ts)-1)
	for i := 1; i < len(ts); i++ {
		if d := ts[i] - ts[i-1]; d-dt > tol || dt-d > tol {
			return 0, fmt.Errorf("%w: samples %d and %d are %g apart, expected %g; interpolate first",
				dynamo.ErrInvalidArgument, i-1, i, d, dt)
		}
	}
	return dt, nil
}
