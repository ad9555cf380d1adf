package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendVerify8(t *testing.T) {
	header := []byte{SOF, 0x04, 0x00, 0x01}
	withCRC := Append8(header)
	require.Len(t, withCRC, 5)
	assert.True(t, Verify8(withCRC))

	// Any single bit flip must be detected.
	for i := range withCRC {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), withCRC...)
			corrupt[i] ^= 1 << bit
			assert.False(t, Verify8(corrupt), "flip byte %d bit %d", i, bit)
		}
	}
}

func TestAppendVerify16(t *testing.T) {
	body := []byte{SOF, 0x02, 0x00, 0x00, 0x11, 0x01, 0x02, 0xAB, 0xCD}
	withCRC := Append16(body)
	require.Len(t, withCRC, len(body)+2)
	assert.True(t, Verify16(withCRC))

	for i := range withCRC {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), withCRC...)
			corrupt[i] ^= 1 << bit
			assert.False(t, Verify16(corrupt), "flip byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyShortInput(t *testing.T) {
	assert.False(t, Verify8(nil))
	assert.False(t, Verify8([]byte{0x42}))
	assert.False(t, Verify16([]byte{0x42, 0x42}))
}
