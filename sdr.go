package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tearncolour/SharkRadio/modem"
	"github.com/tearncolour/SharkRadio/protocol"
)

// Radio is the hardware contract the pipeline works against. Everything
// above this interface is hardware-agnostic; drivers for real devices
// and the loopback/replay test radios all satisfy it.
type Radio interface {
	// Receive blocks until one IQ block is available.
	Receive() ([]complex64, error)

	// Transmit hands a burst to the device for cyclic replay. The
	// burst keeps playing until the next Transmit or StopTransmit.
	Transmit(iq []complex64) error

	// StopTransmit stops cyclic replay.
	StopTransmit() error

	// Configure tunes the device.
	Configure(centerFreq uint64, gainDB float64, bandwidth uint64) error

	// StartStreaming delivers receive blocks to the callback from a
	// device-owned goroutine until StopStreaming.
	StartStreaming(cb func([]complex64)) error
	StopStreaming() error

	Close() error
}

// RadioInfo describes a managed device.
type RadioInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Streaming bool   `json:"streaming"`
}

type radioEntry struct {
	info      RadioInfo
	radio     Radio
	streaming bool
}

// RadioManager owns the connected radios. It is an explicit registry
// passed to whoever needs it; there is no package-level instance.
type RadioManager struct {
	mu       sync.Mutex
	radios   map[string]*radioEntry
	activeID string
}

// NewRadioManager returns an empty registry.
func NewRadioManager() *RadioManager {
	return &RadioManager{radios: make(map[string]*radioEntry)}
}

// Connect registers a radio under an id. A radio already registered
// under the same id is closed first.
func (m *RadioManager) Connect(id, name string, radio Radio) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.radios[id]; ok {
		if err := old.radio.Close(); err != nil {
			log.Printf("[SDR] Error closing radio %s: %v", id, err)
		}
	}
	m.radios[id] = &radioEntry{
		info:  RadioInfo{ID: id, Name: name},
		radio: radio,
	}
	if m.activeID == "" {
		m.activeID = id
	}
}

// Disconnect closes and removes a radio.
func (m *RadioManager) Disconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.radios[id]
	if !ok {
		return fmt.Errorf("unknown radio %q", id)
	}
	delete(m.radios, id)
	if m.activeID == id {
		m.activeID = ""
	}
	return entry.radio.Close()
}

// Get returns the radio registered under id.
func (m *RadioManager) Get(id string) (Radio, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.radios[id]
	if !ok {
		return nil, false
	}
	return entry.radio, true
}

// SetActive marks a radio as the default device.
func (m *RadioManager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.radios[id]; !ok {
		return fmt.Errorf("unknown radio %q", id)
	}
	m.activeID = id
	return nil
}

// ActiveID returns the id of the default radio, or "" when none is
// registered. Requests that omit a radio id fall back to it.
func (m *RadioManager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// List reports all registered radios.
func (m *RadioManager) List() []RadioInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]RadioInfo, 0, len(m.radios))
	for _, entry := range m.radios {
		info := entry.info
		info.Streaming = entry.streaming
		infos = append(infos, info)
	}
	return infos
}

// StartStreaming starts delivery on a radio. Starting an already
// streaming radio is a no-op.
func (m *RadioManager) StartStreaming(id string, cb func([]complex64)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.radios[id]
	if !ok {
		return fmt.Errorf("unknown radio %q", id)
	}
	if entry.streaming {
		return nil
	}
	if err := entry.radio.StartStreaming(cb); err != nil {
		return err
	}
	entry.streaming = true
	return nil
}

// StopStreaming stops delivery on a radio.
func (m *RadioManager) StopStreaming(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.radios[id]
	if !ok {
		return fmt.Errorf("unknown radio %q", id)
	}
	if !entry.streaming {
		return nil
	}
	entry.streaming = false
	return entry.radio.StopStreaming()
}

// CloseAll disconnects every radio, for shutdown.
func (m *RadioManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.radios {
		if err := entry.radio.Close(); err != nil {
			log.Printf("[SDR] Error closing radio %s: %v", id, err)
		}
	}
	m.radios = make(map[string]*radioEntry)
	m.activeID = ""
}

// StartSignal tunes a radio to the named signal profile, modulates the
// payload and starts cyclic transmission. txTrimDB is added to the
// profile's transmit power. It returns the spectrum preview of the
// transmitted burst and its sample count.
func (m *RadioManager) StartSignal(id, signalType string, payload []byte, sampleRate int, txTrimDB float64, analyzer *SpectrumAnalyzer) (*SpectrumPreview, int, error) {
	radio, ok := m.Get(id)
	if !ok {
		return nil, 0, fmt.Errorf("unknown radio %q", id)
	}

	spec := GetSignalSpec(signalType)
	if err := radio.Configure(spec.Frequency, spec.PowerDBm+txTrimDB, spec.Bandwidth); err != nil {
		return nil, 0, fmt.Errorf("configuring %s for %s: %w", id, signalType, err)
	}

	cfg := modem.ConfigForSignal(signalType, sampleRate)
	mod, err := modem.NewModulator(cfg)
	if err != nil {
		return nil, 0, err
	}

	var iq []complex64
	if payload == nil {
		iq = mod.ModulateFiller()
	} else {
		iq, err = mod.Modulate(protocol.CommandRobotStatus, payload)
		if err != nil {
			return nil, 0, err
		}
	}

	if err := radio.Transmit(iq); err != nil {
		return nil, 0, fmt.Errorf("transmitting on %s: %w", id, err)
	}
	log.Printf("[SDR] Transmitting %s: %d samples (cyclic) at %.2f MHz",
		signalType, len(iq), float64(spec.Frequency)/1e6)

	var preview *SpectrumPreview
	if analyzer != nil {
		preview = analyzer.Preview(iq, sampleRate, spec.Frequency)
	}
	return preview, len(iq), nil
}

// StopSignal stops cyclic transmission on a radio.
func (m *RadioManager) StopSignal(id string) error {
	radio, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown radio %q", id)
	}
	return radio.StopTransmit()
}

// LoopbackRadio is an in-process radio: transmitted bursts come back
// as receive blocks. The self-test path and the end-to-end tests run
// the full pipeline over it without hardware.
type LoopbackRadio struct {
	mu        sync.Mutex
	burst     []complex64
	blockSize int

	streamStop chan struct{}
	streamDone chan struct{}
}

// NewLoopbackRadio returns a loopback radio emitting blocks of the
// given size.
func NewLoopbackRadio(blockSize int) *LoopbackRadio {
	if blockSize <= 0 {
		blockSize = 65536
	}
	return &LoopbackRadio{blockSize: blockSize}
}

func (r *LoopbackRadio) Configure(centerFreq uint64, gainDB float64, bandwidth uint64) error {
	return nil
}

func (r *LoopbackRadio) Transmit(iq []complex64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burst = append([]complex64(nil), iq...)
	return nil
}

func (r *LoopbackRadio) StopTransmit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burst = nil
	return nil
}

// Receive returns one block of the transmitted burst, zero-padded to
// the block size. With nothing transmitted it returns a silent block.
func (r *LoopbackRadio) Receive() ([]complex64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	block := make([]complex64, r.blockSize)
	copy(block, r.burst)
	return block, nil
}

func (r *LoopbackRadio) StartStreaming(cb func([]complex64)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamStop != nil {
		return fmt.Errorf("loopback already streaming")
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.streamStop = stop
	r.streamDone = done

	go func() {
		defer close(done)
		// Paced roughly like a hardware DMA buffer turnaround.
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			block, _ := r.Receive()
			cb(block)
		}
	}()
	return nil
}

func (r *LoopbackRadio) StopStreaming() error {
	r.mu.Lock()
	stop, done := r.streamStop, r.streamDone
	r.streamStop, r.streamDone = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (r *LoopbackRadio) Close() error {
	return r.StopStreaming()
}
