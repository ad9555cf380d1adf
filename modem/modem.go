// Package modem implements the 4-level FSK modem with root-raised-cosine
// pulse shaping used on the UHF telemetry link: payload bytes to RF-ready
// complex baseband on the way out, IQ blocks back to symbols and bytes on
// the way in.
package modem

import (
	"fmt"
	"strings"
)

// Config holds the link parameters. All fields are explicit; there are
// no hidden defaults beyond the zero Filter selecting the closed-form
// RRC design.
type Config struct {
	SampleRate  int     // complex samples per second
	SymbolRate  int     // symbols per second
	Alpha       float64 // RRC roll-off factor
	Sensitivity float64 // FM sensitivity, rad per sample per unit level

	// MinTransmitSamples pads a transmit burst by tiling until it is
	// at least this long, so the hardware can replay it cyclically
	// without a glitch. Zero disables padding.
	MinTransmitSamples int

	// Filter designs the RRC taps. Nil selects ClosedFormDesign.
	Filter FilterDesign
}

// SPS returns samples per symbol.
func (c Config) SPS() int {
	if c.SymbolRate == 0 {
		return 0
	}
	return c.SampleRate / c.SymbolRate
}

// Validate checks the configuration for a workable link.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.SymbolRate <= 0 {
		return fmt.Errorf("invalid symbol rate %d", c.SymbolRate)
	}
	if c.SPS() < 2 {
		return fmt.Errorf("samples per symbol %d too low (need >= 2)", c.SPS())
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("invalid RRC roll-off %.3f", c.Alpha)
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("invalid sensitivity %.3f", c.Sensitivity)
	}
	return nil
}

func (c Config) filter() FilterDesign {
	if c.Filter != nil {
		return c.Filter
	}
	return ClosedFormDesign{}
}

// DefaultConfig returns the canonical broadcast profile:
// 2 Msps, 250 kbaud (8 samples/symbol), alpha 0.25, sensitivity 0.54.
func DefaultConfig() Config {
	return Config{
		SampleRate:         2_000_000,
		SymbolRate:         250_000,
		Alpha:              0.25,
		Sensitivity:        0.54,
		MinTransmitSamples: 32768,
	}
}

// ConfigForSignal derives a config from a signal profile name. The jam
// profiles run at different symbol rates; everything else uses the
// 250 kbaud broadcast rate.
func ConfigForSignal(signalType string, sampleRate int) Config {
	cfg := DefaultConfig()
	cfg.SampleRate = sampleRate

	switch {
	case strings.Contains(signalType, "jam_1"):
		cfg.SymbolRate = 500_000
	case strings.Contains(signalType, "jam_2"):
		cfg.SymbolRate = sampleRate / 7
	case strings.Contains(signalType, "jam_3"):
		cfg.SymbolRate = 200_000
	default:
		cfg.SymbolRate = 250_000
	}
	return cfg
}
