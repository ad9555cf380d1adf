package modem

import (
	"math"
	"math/cmplx"

	"github.com/tearncolour/SharkRadio/protocol"
)

const (
	// agcTarget is the peak decision-sample amplitude after gain
	// normalization, matching the outer symbol level. The preamble
	// guarantees outer symbols, so the peak is a reliable reference.
	agcTarget = 3.0

	// offsetReuseThreshold: a cached symbol timing offset is kept
	// while its block MSE stays under this value.
	offsetReuseThreshold = 0.5

	// minTimingSamples is the fewest decision samples worth trusting
	// for an MSE estimate.
	minTimingSamples = 10
)

// Stats reports demodulator state for metrics scraping.
type Stats struct {
	Blocks       uint64
	Symbols      uint64
	TimingResets uint64
	LastMSE      float64
	LastOffset   int
}

// Demodulator recovers 4-FSK symbols from complex baseband blocks. It
// is stateful: the last sample of the previous block seeds the FM
// discriminator and the recovered timing offset persists across
// blocks while it keeps producing clean decisions.
type Demodulator struct {
	cfg  Config
	sps  int
	taps []float64

	prev       complex128
	havePrev   bool
	offset     int
	haveTiming bool

	stats Stats
}

// NewDemodulator builds a demodulator for the given link config.
func NewDemodulator(cfg Config) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sps := cfg.SPS()
	return &Demodulator{
		cfg:  cfg,
		sps:  sps,
		taps: cfg.filter().Taps(sps, cfg.Alpha, RRCTapCount(sps)),
	}, nil
}

// Reset clears discriminator and timing state, as after a retune.
func (d *Demodulator) Reset() {
	d.havePrev = false
	d.haveTiming = false
	d.offset = 0
}

// Stats returns a snapshot of the demodulator counters.
func (d *Demodulator) Stats() Stats { return d.stats }

// Demodulate processes one block of IQ samples and returns the hard
// symbol decisions plus the same decisions packed into bytes. Blocks
// too short to hold symbols yield empty slices.
func (d *Demodulator) Demodulate(iq []complex64) ([]protocol.Symbol, []byte) {
	d.stats.Blocks++
	if len(iq) < 2*d.sps {
		return nil, nil
	}

	disc := d.discriminate(iq)
	filtered := convolveValid(disc, d.taps)
	if len(filtered) < 2*d.sps {
		return nil, nil
	}

	offset, gain := d.recoverTiming(filtered)

	symbols := make([]protocol.Symbol, 0, len(filtered)/d.sps)
	for i := offset; i < len(filtered); i += d.sps {
		symbols = append(symbols, decide(filtered[i]*gain))
	}
	d.stats.Symbols += uint64(len(symbols))

	return symbols, protocol.SymbolsToBytes(symbols)
}

// discriminate converts FM to instantaneous frequency via the phase
// difference of consecutive samples, scaled back by the modulator
// sensitivity. The last sample of each block carries over so symbol
// boundaries survive block splits.
func (d *Demodulator) discriminate(iq []complex64) []float64 {
	out := make([]float64, 0, len(iq))
	prev := d.prev
	start := 0
	if !d.havePrev {
		prev = complex128(iq[0])
		start = 1
	}
	for _, s := range iq[start:] {
		cur := complex128(s)
		out = append(out, cmplx.Phase(cur*cmplx.Conj(prev))/d.cfg.Sensitivity)
		prev = cur
	}
	d.prev = prev
	d.havePrev = true
	return out
}

// recoverTiming picks the sample phase within the symbol period and
// the gain that places its decision samples at the nominal levels. A
// cached offset is reused while its decisions stay close to those
// levels; otherwise every phase is searched for minimum MSE. At the
// correct phase the matched-filter cascade has no inter-symbol
// interference, so the scaled decision samples land on the levels
// almost exactly and the MSE collapses, while every other phase
// samples pulse transitions and stays far off.
func (d *Demodulator) recoverTiming(x []float64) (int, float64) {
	if d.haveTiming {
		gain := d.decisionGain(x, d.offset)
		if mse, n := d.timingMSE(x, d.offset, gain); n >= minTimingSamples && mse < offsetReuseThreshold {
			d.stats.LastMSE = mse
			d.stats.LastOffset = d.offset
			return d.offset, gain
		}
	}

	best, bestGain, bestMSE := -1, 1.0, math.Inf(1)
	for off := 0; off < d.sps; off++ {
		gain := d.decisionGain(x, off)
		mse, n := d.timingMSE(x, off, gain)
		if n < minTimingSamples {
			continue
		}
		if mse < bestMSE {
			best, bestGain, bestMSE = off, gain, mse
		}
	}
	if best < 0 {
		// Block too short to estimate; take mid-symbol.
		off := d.sps / 2
		return off, d.decisionGain(x, off)
	}

	d.stats.TimingResets++
	d.stats.LastMSE = bestMSE
	d.stats.LastOffset = best
	d.offset = best
	d.haveTiming = true
	return best, bestGain
}

// decisionGain scales the decision samples at the given phase so
// their peak sits at the outer symbol level. Only symbol-spaced
// samples count: the filtered waveform overshoots between decision
// instants, and normalizing against that overshoot would compress the
// constellation.
func (d *Demodulator) decisionGain(x []float64, offset int) float64 {
	var peak float64
	for i := offset; i < len(x); i += d.sps {
		if a := math.Abs(x[i]); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return 1
	}
	return agcTarget / peak
}

// timingMSE measures how far gain-scaled decision samples at the
// given phase sit from the nearest nominal level.
func (d *Demodulator) timingMSE(x []float64, offset int, gain float64) (float64, int) {
	var sum float64
	var n int
	for i := offset; i < len(x); i += d.sps {
		v := x[i] * gain
		e := v - float64(decide(v))
		sum += e * e
		n++
	}
	if n == 0 {
		return math.Inf(1), 0
	}
	return sum / float64(n), n
}

// decide maps a filtered sample to the nearest 4-FSK symbol.
func decide(v float64) protocol.Symbol {
	switch {
	case v < -2:
		return protocol.SymbolLow
	case v < 0:
		return protocol.SymbolMidLow
	case v < 2:
		return protocol.SymbolMidHigh
	default:
		return protocol.SymbolHigh
	}
}
