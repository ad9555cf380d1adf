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

func burstConfig() modem.Config {
	cfg := modem.DefaultConfig()
	cfg.MinTransmitSamples = 0
	return cfg
}

func TestSubmitEvictsOldest(t *testing.T) {
	demod, err := modem.NewDemodulator(modem.DefaultConfig())
	require.NoError(t, err)

	cfg := StreamingConfig{QueueSize: 3, PollMs: 500, JoinTimeoutS: 1}
	ch := newChannel("evict", cfg, demod, nil, nil)

	for i := 0; i < 5; i++ {
		ch.Submit([]complex64{complex(float32(i), 0)})
	}

	var got []int
	for len(ch.queue) > 0 {
		block := <-ch.queue
		got = append(got, int(real(block[0])))
	}
	assert.Equal(t, []int{2, 3, 4}, got, "oldest blocks give way to fresh samples")
}

func TestChannelDecodesSubmittedBlocks(t *testing.T) {
	cfg := burstConfig()
	mod, err := modem.NewModulator(cfg)
	require.NoError(t, err)
	burst, err := mod.Modulate(protocol.CommandRealtimeData, []byte{0x10, 0x20})
	require.NoError(t, err)

	var mu sync.Mutex
	var frames []*protocol.Frame
	sink := func(channelID string, frame *protocol.Frame) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	}

	reg := NewStreamRegistry(StreamingConfig{QueueSize: 4, PollMs: 20, JoinTimeoutS: 1}, nil)
	defer reg.StopAll()

	ch, err := reg.Start("uplink", cfg, sink)
	require.NoError(t, err)

	ch.Submit(burst)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, frames[0].Valid)
	assert.Equal(t, protocol.TypeRealtimeData, frames[0].Type)
	assert.Equal(t, []byte{0x10, 0x20}, frames[0].Payload)
}

func TestProcessBlockContainsSinkPanic(t *testing.T) {
	cfg := burstConfig()
	mod, err := modem.NewModulator(cfg)
	require.NoError(t, err)
	demod, err := modem.NewDemodulator(cfg)
	require.NoError(t, err)

	var calls int
	sink := func(string, *protocol.Frame) {
		calls++
		panic("sink exploded")
	}
	ch := newChannel("boom", StreamingConfig{QueueSize: 2, PollMs: 500, JoinTimeoutS: 1}, demod, sink, nil)

	burst, err := mod.Modulate(protocol.CommandRobotStatus, []byte{0x01})
	require.NoError(t, err)
	require.NotPanics(t, func() { ch.processBlock(burst) })
	assert.Equal(t, 1, calls)

	// The channel keeps working after the panic.
	burst, err = mod.Modulate(protocol.CommandRobotStatus, []byte{0x02})
	require.NoError(t, err)
	require.NotPanics(t, func() { ch.processBlock(burst) })
	assert.Equal(t, 2, calls)
}

func TestRegistryOneWorkerPerID(t *testing.T) {
	reg := NewStreamRegistry(StreamingConfig{QueueSize: 2, PollMs: 10, JoinTimeoutS: 1}, nil)
	defer reg.StopAll()

	first, err := reg.Start("ch", modem.DefaultConfig(), nil)
	require.NoError(t, err)
	second, err := reg.Start("ch", modem.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	select {
	case <-first.done:
	default:
		t.Fatal("old worker still running after restart")
	}

	got, ok := reg.Get("ch")
	require.True(t, ok)
	assert.Same(t, second, got)

	reg.Stop("ch")
	select {
	case <-second.done:
	default:
		t.Fatal("worker still running after Stop")
	}
	_, ok = reg.Get("ch")
	assert.False(t, ok)

	reg.Stop("missing")
}
