package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.SymbolRate = 1_500_000 // sps = 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Alpha = 1.0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Sensitivity = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SampleRate = 0
	assert.Error(t, bad.Validate())
}

func TestConfigForSignal(t *testing.T) {
	assert.Equal(t, 500_000, ConfigForSignal("jam_1_sweep", 2_000_000).SymbolRate)
	assert.Equal(t, 2_000_000/7, ConfigForSignal("jam_2_burst", 2_000_000).SymbolRate)
	assert.Equal(t, 200_000, ConfigForSignal("jam_3", 2_000_000).SymbolRate)
	assert.Equal(t, 250_000, ConfigForSignal("broadcast", 2_000_000).SymbolRate)

	cfg := ConfigForSignal("broadcast", 2_000_000)
	assert.Equal(t, 8, cfg.SPS())
	require.NoError(t, cfg.Validate())
}
