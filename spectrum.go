package main

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectrumPreview is the averaged power spectrum of one IQ block,
// shifted so the center frequency sits in the middle and downsampled
// for display.
type SpectrumPreview struct {
	Frequencies []float64 `json:"frequencies"` // Absolute frequency per bin in Hz
	Power       []float64 `json:"power"`       // Power per bin in dBFS
	CenterFreq  uint64    `json:"center_freq"` // Tuned center frequency in Hz
}

// SpectrumAnalyzer computes averaged Hamming-windowed power spectra of
// complex baseband blocks. Safe for concurrent use.
type SpectrumAnalyzer struct {
	fftSize     int
	segments    int
	previewBins int

	mu        sync.Mutex
	fft       *fourier.CmplxFFT
	window    []float64
	windowSum float64
	input     []complex128
}

// NewSpectrumAnalyzer creates an analyzer from the spectrum config.
func NewSpectrumAnalyzer(cfg SpectrumConfig) *SpectrumAnalyzer {
	sa := &SpectrumAnalyzer{
		fftSize:     cfg.FFTSize,
		segments:    cfg.Segments,
		previewBins: cfg.PreviewBins,
		fft:         fourier.NewCmplxFFT(cfg.FFTSize),
		window:      make([]float64, cfg.FFTSize),
		input:       make([]complex128, cfg.FFTSize),
	}

	// Hamming window
	for i := range sa.window {
		sa.window[i] = 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(cfg.FFTSize-1))
		sa.windowSum += sa.window[i]
	}
	return sa
}

// Preview computes the averaged spectrum of the first segments of iq.
// Blocks shorter than one FFT are returned as nil.
func (sa *SpectrumAnalyzer) Preview(iq []complex64, sampleRate int, centerFreq uint64) *SpectrumPreview {
	if len(iq) < sa.fftSize {
		return nil
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	segments := len(iq) / sa.fftSize
	if segments > sa.segments {
		segments = sa.segments
	}

	avgPower := make([]float64, sa.fftSize)
	for s := 0; s < segments; s++ {
		block := iq[s*sa.fftSize : (s+1)*sa.fftSize]
		for i, v := range block {
			sa.input[i] = complex(float64(real(v))*sa.window[i], float64(imag(v))*sa.window[i])
		}
		coeffs := sa.fft.Coefficients(nil, sa.input)
		for i, c := range coeffs {
			// Amplitude normalization for dBFS
			mag := (real(c)*real(c) + imag(c)*imag(c)) / (sa.windowSum * sa.windowSum)
			avgPower[i] += mag
		}
	}

	powerDB := make([]float64, sa.fftSize)
	for i := range avgPower {
		powerDB[i] = 10 * math.Log10(avgPower[i]/float64(segments)+1e-12)
	}

	// Shift so negative frequencies come first.
	shifted := make([]float64, sa.fftSize)
	half := sa.fftSize / 2
	copy(shifted, powerDB[half:])
	copy(shifted[half:], powerDB[:half])

	step := sa.fftSize / sa.previewBins
	if step < 1 {
		step = 1
	}
	df := float64(sampleRate) / float64(sa.fftSize)

	preview := &SpectrumPreview{CenterFreq: centerFreq}
	for i := 0; i < sa.fftSize; i += step {
		offset := (float64(i) - float64(half)) * df
		preview.Frequencies = append(preview.Frequencies, float64(centerFreq)+offset)
		preview.Power = append(preview.Power, shifted[i])
	}
	return preview
}
