package modem

import (
	"math"
	"math/rand"

	"github.com/tearncolour/SharkRadio/protocol"
)

const (
	// PreambleRepeats is how many 0xE4 sync bytes precede a frame on
	// the air, enough for the receiver AGC and symbol timing to lock
	// before the SOF arrives.
	PreambleRepeats = 32

	// txAmplitude keeps the burst inside the DAC's safe range.
	txAmplitude = 0.9
)

// Modulator turns payloads into framed, pulse-shaped FM bursts ready
// for the transmit DAC.
type Modulator struct {
	cfg  Config
	sps  int
	taps []float64 // RRC kernel with interpolation gain baked in
	seq  uint8
}

// NewModulator builds a modulator for the given link config.
func NewModulator(cfg Config) (*Modulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sps := cfg.SPS()
	taps := cfg.filter().Taps(sps, cfg.Alpha, RRCTapCount(sps))

	// Interpolation gain: the zero-stuffed impulse train carries only
	// 1/sps of the symbol energy at DC.
	shaped := make([]float64, len(taps))
	for i, v := range taps {
		shaped[i] = v * float64(sps)
	}

	return &Modulator{cfg: cfg, sps: sps, taps: shaped}, nil
}

// Modulate wraps payload in the frame protocol (preceded by the
// preamble run) and produces the transmit burst. The sequence number
// increments per call. Payloads may be empty but not oversized.
func (m *Modulator) Modulate(cmd protocol.CommandID, payload []byte) ([]complex64, error) {
	frame, err := protocol.BuildFrame(cmd, m.seq, payload)
	if err != nil {
		return nil, err
	}
	m.seq++

	burst := make([]byte, 0, PreambleRepeats+len(frame))
	for i := 0; i < PreambleRepeats; i++ {
		burst = append(burst, protocol.PreambleByte)
	}
	burst = append(burst, frame...)

	return m.modulateBytes(burst), nil
}

// ModulateFiller produces an unframed burst of random symbols, about
// 50 ms worth, for interference and test signals.
func (m *Modulator) ModulateFiller() []complex64 {
	n := m.cfg.SymbolRate / 20 / 4 // bytes
	if n < 1 {
		n = 1
	}
	filler := make([]byte, n)
	rand.Read(filler)
	return m.modulateBytes(filler)
}

// modulateBytes runs the TX chain: symbol mapping, zero-stuffed
// upsampling, RRC shaping, FM modulation and output conditioning.
func (m *Modulator) modulateBytes(data []byte) []complex64 {
	symbols := make([]protocol.Symbol, 0, len(data)*4)
	for _, b := range data {
		symbols = protocol.AppendByteSymbols(symbols, b)
	}

	train := make([]float64, len(symbols)*m.sps)
	for i, s := range symbols {
		train[i*m.sps] = float64(s)
	}

	shaped := convolveFull(train, m.taps)

	// Integrate frequency into phase, then up to the unit circle.
	iq := make([]complex64, len(shaped))
	var phase float64
	for i, v := range shaped {
		phase += m.cfg.Sensitivity * v
		iq[i] = complex(float32(txAmplitude*math.Cos(phase)), float32(txAmplitude*math.Sin(phase)))
	}

	return m.padCyclic(iq)
}

// padCyclic tiles short bursts up to the minimum length the transmit
// hardware needs for stable cyclic replay.
func (m *Modulator) padCyclic(iq []complex64) []complex64 {
	minLen := m.cfg.MinTransmitSamples
	if minLen <= 0 || len(iq) == 0 || len(iq) >= minLen {
		return iq
	}
	out := make([]complex64, 0, minLen+len(iq))
	for len(out) < minLen {
		out = append(out, iq...)
	}
	return out
}
