package protocol

import (
	"encoding/binary"
)

/*
 * Incremental frame synchronizer.
 *
 * The parser consumes either a recovered byte stream or a recovered
 * symbol stream and emits validated frames. After any failed check it
 * advances exactly one byte (or one symbol) and tries again, so a
 * genuine SOF later in the buffer is never skipped. Channel corruption
 * therefore costs frames, never errors.
 */

// Symbol patterns the receiver hunts for before committing to a frame.
var (
	// preamblePattern is one 0xE4 preamble byte: +3 +1 -1 -3.
	preamblePattern = []Symbol{SymbolHigh, SymbolMidHigh, SymbolMidLow, SymbolLow}

	// sofPattern is the 0xA5 start-of-frame byte: +1 +1 -1 -1.
	sofPattern = []Symbol{SymbolMidHigh, SymbolMidHigh, SymbolMidLow, SymbolMidLow}
)

const (
	// headerSymbols is the symbol count of the 5-byte header.
	headerSymbols = HeaderSize * 4

	// symbolTailKeep bounds the symbol buffer while no preamble is
	// in sight. A partial preamble at the very end survives the trim.
	symbolTailKeep = 20
)

// Parser extracts frames from byte or symbol input. State persists
// across calls; a Parser belongs to exactly one consumer and is not
// safe for concurrent use.
type Parser struct {
	bytes   byteBuffer
	symbols symbolBuffer

	// aligned means the preamble run has been consumed and the symbol
	// buffer starts at the SOF group. While set, the buffer is
	// retained in full so a frame split across calls survives.
	aligned bool

	drops uint64
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Reset discards all buffered input and alignment state.
func (p *Parser) Reset() {
	p.bytes.reset()
	p.symbols.reset()
	p.aligned = false
}

// Drops returns the cumulative count of single-unit resync advances
// (one byte or one symbol each) taken after failed frame checks.
func (p *Parser) Drops() uint64 {
	return p.drops
}

// FeedBytes appends data to the byte buffer and parses to fixed point,
// returning any complete valid frames in arrival order.
func (p *Parser) FeedBytes(data []byte) []*Frame {
	if len(data) == 0 {
		return nil
	}
	p.bytes.push(data)

	var frames []*Frame
	for p.bytes.len() >= MinFrameSize {
		sof := p.bytes.indexOf(SOF)
		if sof < 0 {
			// No sync marker anywhere. Keep only a tail short
			// enough that it cannot already hold a frame.
			p.bytes.keepTail(MinFrameSize - 1)
			break
		}
		if sof > 0 {
			p.bytes.dropFront(sof)
		}
		if p.bytes.len() < HeaderSize {
			break
		}

		header := p.bytes.data[:HeaderSize]
		if !Verify8(header) {
			p.bytes.dropFront(1)
			p.drops++
			continue
		}

		dataLen := int(binary.LittleEndian.Uint16(header[1:3]))
		if dataLen > MaxDataLen {
			// A corrupt length field is indistinguishable from
			// a checksum failure on a noisy channel.
			p.bytes.dropFront(1)
			p.drops++
			continue
		}

		total := TotalLength(dataLen)
		if p.bytes.len() < total {
			break
		}

		raw := p.bytes.data[:total]
		if !Verify16(raw) {
			p.bytes.dropFront(1)
			p.drops++
			continue
		}

		frames = append(frames, parseFrame(raw))
		p.bytes.dropFront(total)
	}
	return frames
}

// FeedSymbols appends demodulated symbols and parses to fixed point.
// The symbol path first hunts for the preamble, consumes its
// repetitions up to the SOF symbol group, then applies the same header
// and frame checks as the byte path. Alignment is remembered between
// calls, so a frame arriving in small slices is assembled rather than
// trimmed away.
func (p *Parser) FeedSymbols(symbols []Symbol) []*Frame {
	if len(symbols) == 0 {
		return nil
	}
	p.symbols.push(symbols)

	var frames []*Frame
	for {
		if !p.aligned && !p.align() {
			break
		}

		// The buffer starts at the SOF group. Wait for the header,
		// then for the full frame, before checking anything.
		if p.symbols.len() < headerSymbols {
			break
		}
		header := SymbolsToBytes(p.symbols.data[:headerSymbols])
		if !Verify8(header) {
			p.resync()
			continue
		}

		dataLen := int(binary.LittleEndian.Uint16(header[1:3]))
		if dataLen > MaxDataLen {
			p.resync()
			continue
		}

		totalSymbols := TotalLength(dataLen) * 4
		if p.symbols.len() < totalSymbols {
			break
		}

		raw := SymbolsToBytes(p.symbols.data[:totalSymbols])
		if !Verify16(raw) {
			p.resync()
			continue
		}

		frames = append(frames, parseFrame(raw))
		p.symbols.dropFront(totalSymbols)
		p.aligned = false
	}
	return frames
}

// align hunts for the preamble and consumes its repetitions until the
// SOF group follows. It returns true once the buffer starts at the
// SOF. While a preamble group sits at the head the buffer is left
// intact, even when the rest of the frame has not arrived yet.
func (p *Parser) align() bool {
	for {
		if !p.symbols.matchAt(0, preamblePattern) {
			idx := p.findPreamble()
			if idx < 0 {
				p.symbols.keepTail(symbolTailKeep)
				return false
			}
			p.symbols.dropFront(idx)
		}

		for p.symbols.len() >= 8 && p.symbols.matchAt(4, preamblePattern) {
			p.symbols.dropFront(4)
		}
		if p.symbols.len() < 8 {
			return false
		}
		if p.symbols.matchAt(4, sofPattern) {
			p.symbols.dropFront(4)
			p.aligned = true
			return true
		}

		// A preamble look-alike with neither another group nor the
		// SOF behind it. Advance one symbol and hunt again.
		p.symbols.dropFront(1)
		p.drops++
	}
}

// resync abandons the current alignment after a failed check,
// advancing one symbol so a genuine SOF later on is never skipped.
func (p *Parser) resync() {
	p.symbols.dropFront(1)
	p.drops++
	p.aligned = false
}

// findPreamble returns the offset of the first preamble group, leaving
// enough trailing symbols to be worth aligning on, or -1.
func (p *Parser) findPreamble() int {
	limit := p.symbols.len() - symbolTailKeep
	for i := 0; i < limit; i++ {
		if p.symbols.matchAt(i, preamblePattern) {
			return i
		}
	}
	return -1
}
