package protocol

// byteBuffer accumulates the incoming byte stream for the parser.
// Growth is bounded by the parser's eviction policy: when no SOF is
// present only the trailing MinFrameSize-1 bytes are retained.
type byteBuffer struct {
	data []byte
}

func (b *byteBuffer) push(p []byte) {
	b.data = append(b.data, p...)
}

func (b *byteBuffer) len() int {
	return len(b.data)
}

// dropFront removes the first n bytes.
func (b *byteBuffer) dropFront(n int) {
	b.data = b.data[:copy(b.data, b.data[n:])]
}

// keepTail retains only the last n bytes.
func (b *byteBuffer) keepTail(n int) {
	if len(b.data) > n {
		b.dropFront(len(b.data) - n)
	}
}

// indexOf returns the offset of the first occurrence of c, or -1.
func (b *byteBuffer) indexOf(c byte) int {
	for i, v := range b.data {
		if v == c {
			return i
		}
	}
	return -1
}

func (b *byteBuffer) reset() {
	b.data = b.data[:0]
}

// symbolBuffer accumulates demodulated symbols for the symbol-stream
// parser, trimmed to a small bound while no preamble is in sight.
type symbolBuffer struct {
	data []Symbol
}

func (b *symbolBuffer) push(s []Symbol) {
	b.data = append(b.data, s...)
}

func (b *symbolBuffer) len() int {
	return len(b.data)
}

func (b *symbolBuffer) dropFront(n int) {
	b.data = b.data[:copy(b.data, b.data[n:])]
}

func (b *symbolBuffer) keepTail(n int) {
	if len(b.data) > n {
		b.dropFront(len(b.data) - n)
	}
}

func (b *symbolBuffer) reset() {
	b.data = b.data[:0]
}

// matchAt reports whether pattern occurs at offset i.
func (b *symbolBuffer) matchAt(i int, pattern []Symbol) bool {
	if i < 0 || i+len(pattern) > len(b.data) {
		return false
	}
	for j, p := range pattern {
		if b.data[i+j] != p {
			return false
		}
	}
	return true
}
