package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(dir, entries[0].Name())
}

func TestCaptureRoundTrip(t *testing.T) {
	dir := t.TempDir()
	blocks := [][]complex64{
		{complex(1, -1), complex(0.5, 0.25)},
		{complex(-2, 3)},
		{},
	}

	rec, err := NewIQRecorder(dir, "uplink", 2_000_000)
	require.NoError(t, err)
	for _, b := range blocks {
		require.NoError(t, rec.WriteBlock(b))
	}
	assert.Equal(t, uint64(3), rec.Blocks())
	require.NoError(t, rec.Close())
	require.Error(t, rec.WriteBlock(blocks[0]), "closed recorder rejects writes")

	replay, err := OpenReplayRadio(captureFile(t, dir))
	require.NoError(t, err)
	defer replay.Close()
	assert.Equal(t, 2_000_000, replay.SampleRate())

	for _, want := range blocks {
		got, err := replay.Receive()
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i], got[i])
		}
	}
	_, err = replay.Receive()
	assert.ErrorIs(t, err, io.EOF)

	require.Error(t, replay.Transmit(nil))
}

func TestOpenReplayRadioRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.iq.zst")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a capture"), 0o644))
	_, err := OpenReplayRadio(path)
	require.Error(t, err)

	// Right magic, wrong version.
	header := make([]byte, 16)
	copy(header, iqCaptureMagic[:])
	header[4] = 99
	require.NoError(t, os.WriteFile(path, header, 0o644))
	_, err = OpenReplayRadio(path)
	require.Error(t, err)
}

func TestReplayStreamingDeliversAllBlocks(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewIQRecorder(dir, "uplink", 1_000_000)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, rec.WriteBlock([]complex64{complex(float32(i), 0)}))
	}
	require.NoError(t, rec.Close())

	replay, err := OpenReplayRadio(captureFile(t, dir))
	require.NoError(t, err)
	defer replay.Close()

	got := make(chan float32, 8)
	require.NoError(t, replay.StartStreaming(func(block []complex64) {
		got <- real(block[0])
	}))
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(i), <-got)
	}
	require.NoError(t, replay.StopStreaming())
}
