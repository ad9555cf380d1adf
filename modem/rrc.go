package modem

import "math"

/*
 * Root-raised-cosine filter design.
 *
 * The RRC response is split between transmitter and receiver so the
 * cascade forms a raised cosine with no inter-symbol interference at
 * the symbol centers. Two interchangeable designs share one contract:
 * taps sum to one (unity DC gain) and the count is RRCTapCount(sps).
 * The transmitter multiplies the taps by sps to compensate the
 * zero-stuffed upsampling.
 */

// FilterDesign produces a pulse-shaping kernel for a given rate.
// Implementations must return ntaps coefficients with unity DC gain.
type FilterDesign interface {
	Taps(sps int, alpha float64, ntaps int) []float64
}

// RRCTapCount is the kernel length used on both ends of the link.
// The count is always odd so the kernel has a single center tap and
// an integer group delay.
func RRCTapCount(sps int) int {
	n := 11 * sps
	if n%2 == 0 {
		n++
	}
	return n
}

// ClosedFormDesign evaluates the analytic RRC impulse response with
// explicit handling of its two removable singularities.
type ClosedFormDesign struct{}

func (ClosedFormDesign) Taps(sps int, alpha float64, ntaps int) []float64 {
	taps := make([]float64, ntaps)
	center := (float64(ntaps) - 1) / 2

	for k := range taps {
		t := (float64(k) - center) / float64(sps) // in symbol durations

		switch {
		case math.Abs(t) < 1e-9:
			taps[k] = 1 - alpha + 4*alpha/math.Pi
		case math.Abs(math.Abs(t)-1/(4*alpha)) < 1e-6:
			taps[k] = (alpha / math.Sqrt2) *
				((1+2/math.Pi)*math.Sin(math.Pi/(4*alpha)) +
					(1-2/math.Pi)*math.Cos(math.Pi/(4*alpha)))
		default:
			num := math.Sin(math.Pi*t*(1-alpha)) + 4*alpha*t*math.Cos(math.Pi*t*(1+alpha))
			den := math.Pi * t * (1 - math.Pow(4*alpha*t, 2))
			taps[k] = num / den
		}
	}

	normalizeDC(taps)
	return taps
}

// WindowedSincDesign is the hand-derived variant: the sinc pulse with
// a cosine window tapering the edges faster. Slightly different
// stopband behavior, same contract.
type WindowedSincDesign struct{}

func (WindowedSincDesign) Taps(sps int, alpha float64, ntaps int) []float64 {
	taps := make([]float64, ntaps)
	center := (float64(ntaps) - 1) / 2

	for k := range taps {
		t := (float64(k) - center) / float64(sps)

		var sinc float64
		if math.Abs(t) < 1e-3 {
			sinc = 1
		} else {
			sinc = math.Sin(math.Pi*t) / (math.Pi * t)
		}

		var win float64
		if math.Abs(math.Abs(alpha*t)-0.5) < 1e-3 {
			win = math.Pi / 4
		} else {
			win = math.Cos(math.Pi*alpha*t) / (1 - math.Pow(2*alpha*t, 2))
		}

		taps[k] = sinc * win
	}

	normalizeDC(taps)
	return taps
}

// normalizeDC scales taps to unity gain at DC.
func normalizeDC(taps []float64) {
	var sum float64
	for _, v := range taps {
		sum += v
	}
	if sum == 0 {
		return
	}
	for k := range taps {
		taps[k] /= sum
	}
}

// convolveFull is the full linear convolution, len(x)+len(h)-1 long.
func convolveFull(x, h []float64) []float64 {
	out := make([]float64, len(x)+len(h)-1)
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		for j, hj := range h {
			out[i+j] += xi * hj
		}
	}
	return out
}

// convolveValid keeps only the fully-overlapped part of the
// convolution. Inputs shorter than the kernel pass through unchanged,
// matching the receive chain's behavior on startup runts.
func convolveValid(x, h []float64) []float64 {
	n := len(x) - len(h) + 1
	if n <= 0 {
		return x
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j, hj := range h {
			sum += hj * x[i+j]
		}
		out[i] = sum
	}
	return out
}
