package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolMappingBijection(t *testing.T) {
	for d := byte(0); d < 4; d++ {
		assert.Equal(t, d, SymbolFromDibit(d).Dibit())
	}

	// The fixed table: 00->-3, 01->-1, 10->+1, 11->+3.
	assert.Equal(t, SymbolLow, SymbolFromDibit(0))
	assert.Equal(t, SymbolMidLow, SymbolFromDibit(1))
	assert.Equal(t, SymbolMidHigh, SymbolFromDibit(2))
	assert.Equal(t, SymbolHigh, SymbolFromDibit(3))
}

func TestByteSymbolRoundTrip(t *testing.T) {
	var symbols []Symbol
	data := []byte{0x00, 0xFF, PreambleByte, SOF, 0x5A, 0x12}
	for _, b := range data {
		symbols = AppendByteSymbols(symbols, b)
	}
	require.Len(t, symbols, len(data)*4)
	assert.Equal(t, data, SymbolsToBytes(symbols))
}

func TestKnownSymbolPatterns(t *testing.T) {
	// 0xE4 = 11 10 01 00 and 0xA5 = 10 10 01 01 are the on-air
	// preamble and SOF patterns.
	assert.Equal(t, preamblePattern, AppendByteSymbols(nil, PreambleByte))
	assert.Equal(t, sofPattern, AppendByteSymbols(nil, SOF))
}

func TestSymbolsToBytesIgnoresPartialByte(t *testing.T) {
	symbols := AppendByteSymbols(nil, 0x3C)
	symbols = append(symbols, SymbolHigh, SymbolHigh)
	assert.Equal(t, []byte{0x3C}, SymbolsToBytes(symbols))
}
