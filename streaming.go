package main

import (
	"log"
	"sync"
	"time"

	"github.com/tearncolour/SharkRadio/modem"
	"github.com/tearncolour/SharkRadio/protocol"
)

// FrameSink receives decoded frames from a streaming channel.
type FrameSink func(channelID string, frame *protocol.Frame)

// Channel is one live demodulation pipeline: radio blocks go in
// through Submit, validated frames come out through the sink. Each
// channel owns one worker goroutine, one demodulator and one parser,
// so frame order matches sample arrival order.
type Channel struct {
	ID string

	queue chan []complex64
	stop  chan struct{}
	done  chan struct{}

	demod   *modem.Demodulator
	parser  *protocol.Parser
	sink    FrameSink
	metrics *PrometheusMetrics

	pollInterval time.Duration
	joinTimeout  time.Duration
}

func newChannel(id string, cfg StreamingConfig, demod *modem.Demodulator, sink FrameSink, metrics *PrometheusMetrics) *Channel {
	return &Channel{
		ID:           id,
		queue:        make(chan []complex64, cfg.QueueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		demod:        demod,
		parser:       protocol.NewParser(),
		sink:         sink,
		metrics:      metrics,
		pollInterval: time.Duration(cfg.PollMs) * time.Millisecond,
		joinTimeout:  time.Duration(cfg.JoinTimeoutS) * time.Second,
	}
}

// Submit enqueues one IQ block without blocking. When the queue is
// full the oldest block is evicted first: a live receiver wants fresh
// samples over complete history.
func (c *Channel) Submit(block []complex64) {
	select {
	case c.queue <- block:
	default:
		select {
		case <-c.queue:
			c.metrics.BlockDropped(c.ID)
		default:
		}
		select {
		case c.queue <- block:
		default:
			// Lost the race to another producer; drop the new block.
			c.metrics.BlockDropped(c.ID)
		}
	}
	c.metrics.QueueDepth(c.ID, len(c.queue))
}

// run is the worker loop. The dequeue is bounded so the stop signal
// is observed even when no blocks arrive.
func (c *Channel) run() {
	defer close(c.done)
	log.Printf("[Stream] Worker started for channel %s", c.ID)

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		timer.Reset(c.pollInterval)
		select {
		case <-c.stop:
			return
		case block := <-c.queue:
			c.processBlock(block)
		case <-timer.C:
		}
	}
}

// processBlock demodulates and parses one block. A panic anywhere in
// the chain is contained to the block: logged, counted, and the loop
// moves on.
func (c *Channel) processBlock(block []complex64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Stream] Recovered panic on channel %s: %v", c.ID, r)
			c.metrics.WorkerPanic(c.ID)
		}
	}()

	symbols, _ := c.demod.Demodulate(block)
	c.metrics.BlockProcessed(c.ID)

	for _, frame := range c.parser.FeedSymbols(symbols) {
		c.metrics.FrameDecoded(c.ID, string(frame.Type), frame.Valid)
		if c.sink != nil {
			c.sink(c.ID, frame)
		}
	}
	c.metrics.DemodTiming(c.ID, c.demod.Stats())
	c.metrics.ParserDrops(c.ID, c.parser.Drops())
}

// shutdown signals the worker and waits for it, bounded. A worker
// stuck past the timeout is reported but never blocks the caller.
func (c *Channel) shutdown() {
	close(c.stop)
	select {
	case <-c.done:
		log.Printf("[Stream] Worker stopped for channel %s", c.ID)
	case <-time.After(c.joinTimeout):
		log.Printf("[Stream] Warning: worker for channel %s did not stop within %v", c.ID, c.joinTimeout)
	}
}

// StreamRegistry owns the live channels. It is created by the pipeline
// and passed where needed; there is no package-level registry.
type StreamRegistry struct {
	cfg     StreamingConfig
	metrics *PrometheusMetrics

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewStreamRegistry returns an empty registry.
func NewStreamRegistry(cfg StreamingConfig, metrics *PrometheusMetrics) *StreamRegistry {
	return &StreamRegistry{
		cfg:      cfg,
		metrics:  metrics,
		channels: make(map[string]*Channel),
	}
}

// Start creates a channel and its worker. Exactly one worker runs per
// id: an existing channel under the same id is stopped first.
func (r *StreamRegistry) Start(id string, demodCfg modem.Config, sink FrameSink) (*Channel, error) {
	demod, err := modem.NewDemodulator(demodCfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.channels[id]
	delete(r.channels, id)
	r.mu.Unlock()
	if old != nil {
		old.shutdown()
	}

	ch := newChannel(id, r.cfg, demod, sink, r.metrics)

	r.mu.Lock()
	r.channels[id] = ch
	r.mu.Unlock()

	go ch.run()
	return ch, nil
}

// Get returns the live channel for id.
func (r *StreamRegistry) Get(id string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Stop shuts down the channel for id. Stopping an unknown id is a
// no-op.
func (r *StreamRegistry) Stop(id string) {
	r.mu.Lock()
	ch := r.channels[id]
	delete(r.channels, id)
	r.mu.Unlock()

	if ch != nil {
		ch.shutdown()
	}
}

// StopAll shuts down every channel, for shutdown.
func (r *StreamRegistry) StopAll() {
	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown()
	}
}
