package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Any payload up to MaxDataLen survives build -> parse in byte mode.
func TestPropByteRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, MaxDataLen).Draw(t, "payload")
		seq := rapid.Byte().Draw(t, "seq")

		raw, err := BuildFrame(CommandRealtimeData, seq, payload)
		require.NoError(t, err)

		frames := NewParser().FeedBytes(raw)
		require.Len(t, frames, 1)
		if len(payload) == 0 {
			require.Empty(t, frames[0].Payload)
		} else {
			require.Equal(t, payload, frames[0].Payload)
		}
		require.Equal(t, seq, frames[0].Seq)
		require.True(t, frames[0].Valid)
	})
}

// The same holds in symbol mode with a preamble ahead of the frame.
func TestPropSymbolRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, MaxDataLen).Draw(t, "payload")
		reps := rapid.IntRange(4, 32).Draw(t, "preambleReps")

		raw, err := BuildFrame(CommandRobotStatus, 0, payload)
		require.NoError(t, err)

		var symbols []Symbol
		for i := 0; i < reps; i++ {
			symbols = AppendByteSymbols(symbols, PreambleByte)
		}
		for _, b := range raw {
			symbols = AppendByteSymbols(symbols, b)
		}

		frames := NewParser().FeedSymbols(symbols)
		require.Len(t, frames, 1)
		if len(payload) == 0 {
			require.Empty(t, frames[0].Payload)
		} else {
			require.Equal(t, payload, frames[0].Payload)
		}
	})
}
