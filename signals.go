package main

import (
	"sort"
	"strings"
)

// SignalSpec describes one entry of the UHF signal plan: where a
// signal sits, how fast it runs and how loud it is on the air.
type SignalSpec struct {
	Frequency  uint64  `json:"frequency"`   // Center frequency in Hz
	SymbolRate int     `json:"symbol_rate"` // Symbols per second
	Bandwidth  uint64  `json:"bandwidth"`   // Occupied bandwidth in Hz
	PowerDBm   float64 `json:"power_dbm"`   // Transmit power in dBm
}

// signalSpecs is the closed signal plan for both sides. The bare jam
// aliases default to the red side.
var signalSpecs = map[string]SignalSpec{
	"red_broadcast":  {Frequency: 433_200_000, SymbolRate: 250_000, Bandwidth: 540_000, PowerDBm: -10},
	"red_jam_1":      {Frequency: 432_200_000, SymbolRate: 500_000, Bandwidth: 1_040_000, PowerDBm: -10},
	"red_jam_2":      {Frequency: 432_600_000, SymbolRate: 285_000, Bandwidth: 610_000, PowerDBm: 10},
	"red_jam_3":      {Frequency: 433_200_000, SymbolRate: 200_000, Bandwidth: 440_000, PowerDBm: -10},
	"blue_broadcast": {Frequency: 433_920_000, SymbolRate: 250_000, Bandwidth: 540_000, PowerDBm: -10},
	"blue_jam_1":     {Frequency: 434_920_000, SymbolRate: 500_000, Bandwidth: 1_040_000, PowerDBm: -10},
	"blue_jam_2":     {Frequency: 434_520_000, SymbolRate: 285_000, Bandwidth: 610_000, PowerDBm: 10},
	"blue_jam_3":     {Frequency: 433_920_000, SymbolRate: 200_000, Bandwidth: 440_000, PowerDBm: -10},
	"jam_1":          {Frequency: 432_200_000, SymbolRate: 500_000, Bandwidth: 1_040_000, PowerDBm: -10},
	"jam_2":          {Frequency: 432_600_000, SymbolRate: 285_000, Bandwidth: 610_000, PowerDBm: 10},
	"jam_3":          {Frequency: 433_200_000, SymbolRate: 200_000, Bandwidth: 440_000, PowerDBm: -10},
}

// defaultSignalSpec is returned for signal types outside the plan.
var defaultSignalSpec = SignalSpec{Frequency: 433_500_000, SymbolRate: 250_000}

// GetSignalSpec looks up a signal type, falling back to the default
// spec for unknown types.
func GetSignalSpec(signalType string) SignalSpec {
	if spec, ok := signalSpecs[signalType]; ok {
		return spec
	}
	return defaultSignalSpec
}

// SignalTypes returns the known signal type names for one side in
// sorted order.
func SignalTypes(side string) []string {
	var names []string
	for name := range signalSpecs {
		if strings.HasPrefix(name, side+"_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
