package protocol

/*
 * Checksum codecs for the link protocol.
 *
 * CRC8 protects the 5-byte frame header, CRC16 the entire frame.
 * Both are the reflected table-driven variants used by the referee
 * wire format: CRC8 poly 0x8C (x^8+x^5+x^4+1) init 0xFF, CRC16
 * CCITT poly 0x8408 init 0xFFFF.
 */

const (
	crc8Init  uint8  = 0xFF
	crc8Poly  uint8  = 0x8C
	crc16Init uint16 = 0xFFFF
	crc16Poly uint16 = 0x8408
)

var (
	crc8Table  [256]uint8
	crc16Table [256]uint16
)

func init() {
	for i := 0; i < 256; i++ {
		c8 := uint8(i)
		c16 := uint16(i)
		for b := 0; b < 8; b++ {
			if c8&1 != 0 {
				c8 = (c8 >> 1) ^ crc8Poly
			} else {
				c8 >>= 1
			}
			if c16&1 != 0 {
				c16 = (c16 >> 1) ^ crc16Poly
			} else {
				c16 >>= 1
			}
		}
		crc8Table[i] = c8
		crc16Table[i] = c16
	}
}

// Sum8 computes the header CRC8 over data.
func Sum8(data []byte) uint8 {
	crc := crc8Init
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc
}

// Verify8 checks that the last byte of data is the CRC8 of everything
// preceding it. Returns false for inputs too short to carry a checksum.
func Verify8(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return Sum8(data[:len(data)-1]) == data[len(data)-1]
}

// Append8 returns data with its CRC8 appended.
func Append8(data []byte) []byte {
	return append(data, Sum8(data))
}

// Sum16 computes the frame CRC16 over data.
func Sum16(data []byte) uint16 {
	crc := crc16Init
	for _, b := range data {
		crc = crc16Table[uint8(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// Verify16 checks the little-endian CRC16 stored in the last two bytes
// of data against the rest.
func Verify16(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	want := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	return Sum16(data[:len(data)-2]) == want
}

// Append16 returns data with its CRC16 appended little-endian.
func Append16(data []byte) []byte {
	crc := Sum16(data)
	return append(data, byte(crc), byte(crc>>8))
}
