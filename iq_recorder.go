package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// IQ Capture File Format
// ======================
//
// A capture file is a 16-byte plain header followed by a zstd stream
// of length-prefixed IQ blocks.
//
// HEADER (16 bytes, uncompressed):
// Offset | Size | Type   | Description
// -------|------|--------|----------------------------------
// 0      | 4    | bytes  | Magic: "SRIQ"
// 4      | 1    | uint8  | Version: 1
// 5      | 3    | -      | Reserved
// 8      | 4    | uint32 | Sample rate in Hz
// 12     | 4    | uint32 | Reserved
//
// BLOCK (inside the zstd stream, repeated):
// 0      | 4    | uint32 | Sample count N
// 4      | 8*N  | f32 LE | Interleaved I,Q pairs

var iqCaptureMagic = [4]byte{'S', 'R', 'I', 'Q'}

const iqCaptureVersion uint8 = 1

// IQRecorder appends received IQ blocks to a zstd-compressed capture
// file. Safe for use from the producer callback.
type IQRecorder struct {
	mu     sync.Mutex
	file   *os.File
	zw     *zstd.Encoder
	blocks uint64
}

// NewIQRecorder creates a capture file named after the channel and the
// current time.
func NewIQRecorder(dir, channelID string, sampleRate int) (*IQRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.iq.zst", channelID, time.Now().UTC().Format("20060102T150405Z"))
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	header := make([]byte, 16)
	copy(header, iqCaptureMagic[:])
	header[4] = iqCaptureVersion
	binary.LittleEndian.PutUint32(header[8:], uint32(sampleRate))
	if _, err := file.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing capture header: %w", err)
	}

	zw, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, err
	}

	return &IQRecorder{file: file, zw: zw}, nil
}

// WriteBlock appends one IQ block to the capture.
func (r *IQRecorder) WriteBlock(iq []complex64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zw == nil {
		return fmt.Errorf("recorder closed")
	}

	buf := make([]byte, 4+8*len(iq))
	binary.LittleEndian.PutUint32(buf, uint32(len(iq)))
	for i, s := range iq {
		binary.LittleEndian.PutUint32(buf[4+8*i:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[8+8*i:], math.Float32bits(imag(s)))
	}

	if _, err := r.zw.Write(buf); err != nil {
		return err
	}
	r.blocks++
	return nil
}

// Blocks returns the number of blocks written so far.
func (r *IQRecorder) Blocks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks
}

// Close flushes the zstd stream and closes the file.
func (r *IQRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zw == nil {
		return nil
	}
	zerr := r.zw.Close()
	r.zw = nil
	if err := r.file.Close(); err != nil {
		return err
	}
	return zerr
}

// ReplayRadio plays a capture file back through the Radio interface,
// so recorded air can drive the same pipeline as live hardware.
type ReplayRadio struct {
	sampleRate int

	mu   sync.Mutex
	file *os.File
	zr   *zstd.Decoder

	streamStop chan struct{}
	streamDone chan struct{}
}

// OpenReplayRadio opens a capture file for playback.
func OpenReplayRadio(path string) (*ReplayRadio, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 16)
	if _, err := io.ReadFull(file, header); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if [4]byte(header[:4]) != iqCaptureMagic {
		file.Close()
		return nil, fmt.Errorf("not an IQ capture file: %s", path)
	}
	if header[4] != iqCaptureVersion {
		file.Close()
		return nil, fmt.Errorf("unsupported capture version %d", header[4])
	}

	zr, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &ReplayRadio{
		sampleRate: int(binary.LittleEndian.Uint32(header[8:])),
		file:       file,
		zr:         zr,
	}, nil
}

// SampleRate returns the capture's sample rate.
func (r *ReplayRadio) SampleRate() int { return r.sampleRate }

// Receive returns the next recorded block. io.EOF marks the end of
// the capture.
func (r *ReplayRadio) Receive() ([]complex64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zr == nil {
		return nil, io.EOF
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.zr, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])

	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r.zr, buf); err != nil {
		return nil, err
	}

	iq := make([]complex64, n)
	for i := range iq {
		re := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i+4:]))
		iq[i] = complex(re, im)
	}
	return iq, nil
}

func (r *ReplayRadio) Transmit(iq []complex64) error {
	return fmt.Errorf("replay radio cannot transmit")
}

func (r *ReplayRadio) StopTransmit() error { return nil }

func (r *ReplayRadio) Configure(centerFreq uint64, gainDB float64, bandwidth uint64) error {
	return nil
}

// StartStreaming replays the capture to the callback, then stops at
// end of file.
func (r *ReplayRadio) StartStreaming(cb func([]complex64)) error {
	r.mu.Lock()
	if r.streamStop != nil {
		r.mu.Unlock()
		return fmt.Errorf("replay already streaming")
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.streamStop = stop
	r.streamDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			block, err := r.Receive()
			if err != nil {
				return
			}
			cb(block)
		}
	}()
	return nil
}

func (r *ReplayRadio) StopStreaming() error {
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

// Close releases the decoder and the file.
func (r *ReplayRadio) Close() error {
	r.StopStreaming()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zr == nil {
		return nil
	}
	r.zr.Close()
	r.zr = nil
	return r.file.Close()
}
