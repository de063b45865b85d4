package binutil

// Register words inside a MODBUS frame are big-endian. 32 bit quantities on
// PZEM meters are packed low word first, each word big-endian (CDAB layout).

// AB
func ParseUint16BigEndian(buf []byte) uint16 {
	return uint16(buf[0])<<8 + uint16(buf[1])
}

// BA
func ParseUint16LittleEndian(buf []byte) uint16 {
	return uint16(buf[1])<<8 + uint16(buf[0])
}

// ABCD
func ParseUint32BigEndian(buf []byte) uint32 {
	return uint32(buf[0])<<24 +
		uint32(buf[1])<<16 +
		uint32(buf[2])<<8 +
		uint32(buf[3])
}

// CDAB
func ParseUint32LittleEndianByteSwap(buf []byte) uint32 {
	return uint32(buf[2])<<24 +
		uint32(buf[3])<<16 +
		uint32(buf[0])<<8 +
		uint32(buf[1])
}

// WriteUint16 writes v big-endian into buf.
func WriteUint16(buf []byte, v uint16) {
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
}

// WriteUint16LittleEndian writes v little-endian into buf.
func WriteUint16LittleEndian(buf []byte, v uint16) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func Dup(buf []byte) []byte {
	b := make([]byte, len(buf))
	copy(b, buf)
	return b
}
