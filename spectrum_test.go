package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectrumPreviewFindsTone(t *testing.T) {
	const (
		sampleRate = 1_000_000
		centerFreq = 433_200_000
		toneOffset = 125_000.0
	)
	sa := NewSpectrumAnalyzer(SpectrumConfig{FFTSize: 256, Segments: 4, PreviewBins: 64})

	iq := make([]complex64, 4*256)
	for n := range iq {
		phase := 2 * math.Pi * toneOffset * float64(n) / sampleRate
		iq[n] = complex(float32(math.Cos(phase)), float32(math.Sin(phase)))
	}

	preview := sa.Preview(iq, sampleRate, centerFreq)
	require.NotNil(t, preview)
	assert.Equal(t, uint64(centerFreq), preview.CenterFreq)
	require.Len(t, preview.Power, 64)
	require.Len(t, preview.Frequencies, 64)

	peak := 0
	for i, p := range preview.Power {
		if p > preview.Power[peak] {
			peak = i
		}
	}
	// Downsampling leaves a few bins of slack around the tone.
	binWidth := float64(sampleRate) / 256 * (256 / 64)
	assert.InDelta(t, float64(centerFreq)+toneOffset, preview.Frequencies[peak], binWidth)

	// Frequency axis spans center +/- half the sample rate.
	assert.InDelta(t, float64(centerFreq)-sampleRate/2, preview.Frequencies[0], 1)
}

func TestSpectrumPreviewShortInput(t *testing.T) {
	sa := NewSpectrumAnalyzer(SpectrumConfig{FFTSize: 256, Segments: 4, PreviewBins: 64})
	assert.Nil(t, sa.Preview(make([]complex64, 255), 1_000_000, 433_000_000))
}
