package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

/*
 * Frame wire format:
 *
 *   SOF(1) | Len(2,LE) | Seq(1) | CRC8(1) | CmdID(2,LE) | Data(Len) | CRC16(2,LE)
 *
 * CRC8 covers the first four header bytes, CRC16 covers everything
 * before itself. An optional run of preamble bytes precedes the frame
 * on the air and is covered by neither checksum.
 */

const (
	// SOF is the start-of-frame marker.
	SOF = 0xA5

	// PreambleByte is the sync byte repeated ahead of a frame so the
	// receiver AGC and symbol timing can settle. 0xE4 decodes to the
	// symbol pattern +3,+1,-1,-3.
	PreambleByte = 0xE4

	// HeaderSize is SOF + Len + Seq + CRC8.
	HeaderSize = 5

	// MinFrameSize is a frame with an empty payload:
	// header(5) + cmd(2) + crc16(2).
	MinFrameSize = 9

	// MaxDataLen bounds the payload length field. Anything larger is
	// treated as channel corruption.
	MaxDataLen = 256
)

// Frame is one validated protocol frame.
type Frame struct {
	DataLength uint16
	Seq        uint8
	CRC8       uint8
	CommandID  CommandID
	Payload    []byte
	CRC16      uint16
	Raw        []byte
	Type       CommandType
	Valid      bool
	Time       time.Time
}

// Hex returns the raw frame bytes as an upper-case hex string.
func (f *Frame) Hex() string {
	return strings.ToUpper(hex.EncodeToString(f.Raw))
}

// TotalLength returns the full on-wire size for a payload length.
func TotalLength(dataLen int) int {
	return HeaderSize + 2 + dataLen + 2
}

// BuildFrame assembles a complete frame around payload with both
// checksums appended. No preamble is included.
func BuildFrame(cmd CommandID, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxDataLen {
		return nil, fmt.Errorf("payload too long: %d bytes (max %d)", len(payload), MaxDataLen)
	}

	frame := make([]byte, 0, TotalLength(len(payload)))
	frame = append(frame, SOF)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, seq)
	frame = Append8(frame)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(cmd))
	frame = append(frame, payload...)
	frame = Append16(frame)
	return frame, nil
}

// parseFrame decodes a raw frame whose checksums have already been
// verified.
func parseFrame(raw []byte) *Frame {
	dataLen := binary.LittleEndian.Uint16(raw[1:3])
	cmd := CommandID(binary.LittleEndian.Uint16(raw[5:7]))

	// Non-nil even when empty, so callers can compare payloads
	// without special-casing zero-length frames.
	payload := make([]byte, dataLen)
	copy(payload, raw[7:7+int(dataLen)])

	f := &Frame{
		DataLength: dataLen,
		Seq:        raw[3],
		CRC8:       raw[4],
		CommandID:  cmd,
		Payload:    payload,
		CRC16:      binary.LittleEndian.Uint16(raw[len(raw)-2:]),
		Raw:        append([]byte(nil), raw...),
		Type:       cmd.Type(),
		Valid:      true,
		Time:       time.Now(),
	}
	return f
}
