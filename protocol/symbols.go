package protocol

// Symbol is one quaternary modulation level. Each symbol carries two
// bits; four symbols make one byte, most significant dibit first.
type Symbol int8

// The four ideal levels. The dibit mapping is fixed by the wire format:
// 00 -> -3, 01 -> -1, 10 -> +1, 11 -> +3.
const (
	SymbolLow     Symbol = -3
	SymbolMidLow  Symbol = -1
	SymbolMidHigh Symbol = 1
	SymbolHigh    Symbol = 3
)

var dibitSymbols = [4]Symbol{SymbolLow, SymbolMidLow, SymbolMidHigh, SymbolHigh}

// SymbolFromDibit maps a 2-bit value to its modulation level.
func SymbolFromDibit(d byte) Symbol {
	return dibitSymbols[d&0x03]
}

// Dibit maps a symbol back to its 2-bit value. The mapping is a
// bijection with SymbolFromDibit.
func (s Symbol) Dibit() byte {
	return byte((s + 3) / 2)
}

// AppendByteSymbols appends the four symbols encoding b, MSB-first.
func AppendByteSymbols(dst []Symbol, b byte) []Symbol {
	return append(dst,
		SymbolFromDibit(b>>6),
		SymbolFromDibit(b>>4),
		SymbolFromDibit(b>>2),
		SymbolFromDibit(b))
}

// SymbolsToBytes packs symbols into bytes, four symbols per byte,
// MSB-first. Trailing symbols that do not fill a byte are ignored.
func SymbolsToBytes(symbols []Symbol) []byte {
	out := make([]byte, 0, len(symbols)/4)
	for i := 0; i+4 <= len(symbols); i += 4 {
		var b byte
		for j := 0; j < 4; j++ {
			b = b<<2 | symbols[i+j].Dibit()
		}
		out = append(out, b)
	}
	return out
}
