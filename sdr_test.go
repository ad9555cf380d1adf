package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tearncolour/SharkRadio/modem"
	"github.com/tearncolour/SharkRadio/protocol"
)

// fakeRadio counts lifecycle calls for manager tests.
type fakeRadio struct {
	mu        sync.Mutex
	closed    int
	streaming bool
}

func (f *fakeRadio) Receive() ([]complex64, error)           { return nil, nil }
func (f *fakeRadio) Transmit(iq []complex64) error           { return nil }
func (f *fakeRadio) StopTransmit() error                     { return nil }
func (f *fakeRadio) Configure(uint64, float64, uint64) error { return nil }

func (f *fakeRadio) StartStreaming(cb func([]complex64)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = true
	return nil
}

func (f *fakeRadio) StopStreaming() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = false
	return nil
}

func (f *fakeRadio) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestRadioManagerLifecycle(t *testing.T) {
	m := NewRadioManager()

	first := &fakeRadio{}
	second := &fakeRadio{}
	m.Connect("pluto", "PlutoSDR", first)
	m.Connect("pluto", "PlutoSDR", second)
	assert.Equal(t, 1, first.closed, "reconnect under the same id closes the old radio")
	assert.Equal(t, "pluto", m.ActiveID(), "first connected radio becomes the default")

	m.Connect("loop", "Loopback", &fakeRadio{})
	assert.Equal(t, "pluto", m.ActiveID(), "a later connect does not steal the default")
	require.Error(t, m.SetActive("missing"))
	require.NoError(t, m.SetActive("loop"))
	assert.Equal(t, "loop", m.ActiveID())
	require.NoError(t, m.Disconnect("loop"))
	assert.Empty(t, m.ActiveID(), "disconnecting the default clears it")

	got, ok := m.Get("pluto")
	require.True(t, ok)
	assert.Same(t, second, got.(*fakeRadio))

	require.NoError(t, m.StartStreaming("pluto", func([]complex64) {}))
	require.NoError(t, m.StartStreaming("pluto", func([]complex64) {}), "second start is a no-op")
	infos := m.List()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Streaming)

	require.NoError(t, m.StopStreaming("pluto"))
	require.Error(t, m.StartStreaming("missing", nil))

	require.NoError(t, m.Disconnect("pluto"))
	assert.Equal(t, 1, second.closed)
	require.Error(t, m.Disconnect("pluto"))
	assert.Empty(t, m.ActiveID())
}

func TestStartSignalUnknownRadio(t *testing.T) {
	m := NewRadioManager()
	_, _, err := m.StartSignal("missing", "red_broadcast", nil, 2_000_000, 0, nil)
	require.Error(t, err)
}

// Full pipeline over the loopback radio: StartSignal modulates and
// transmits, streaming replays the burst, and the demodulation channel
// recovers the payload.
func TestLoopbackEndToEnd(t *testing.T) {
	const sampleRate = 2_000_000
	payload := []byte{0xCA, 0xFE, 0x05}

	m := NewRadioManager()
	m.Connect("loop", "Loopback", NewLoopbackRadio(65536))
	defer m.CloseAll()

	_, samples, err := m.StartSignal("loop", "red_broadcast", payload, sampleRate, 0, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, samples, modem.DefaultConfig().MinTransmitSamples)

	var mu sync.Mutex
	var frames []*protocol.Frame
	sink := func(channelID string, frame *protocol.Frame) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	}

	reg := NewStreamRegistry(StreamingConfig{QueueSize: 4, PollMs: 20, JoinTimeoutS: 1}, nil)
	defer reg.StopAll()
	ch, err := reg.Start("loop", modem.ConfigForSignal("red_broadcast", sampleRate), sink)
	require.NoError(t, err)

	require.NoError(t, m.StartStreaming("loop", ch.Submit))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) > 0
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, m.StopStreaming("loop"))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, frames[0].Valid)
	assert.Equal(t, protocol.CommandRobotStatus, frames[0].CommandID)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestLoopbackStopTransmitSilences(t *testing.T) {
	r := NewLoopbackRadio(16)
	require.NoError(t, r.Transmit([]complex64{1, 2, 3}))

	block, err := r.Receive()
	require.NoError(t, err)
	require.Len(t, block, 16)
	assert.Equal(t, complex64(1), block[0])

	require.NoError(t, r.StopTransmit())
	block, err = r.Receive()
	require.NoError(t, err)
	assert.Equal(t, complex64(0), block[0])
}
