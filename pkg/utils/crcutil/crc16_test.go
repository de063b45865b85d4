package crcutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCrc16sum(t *testing.T) {
	// read input registers 0x0000..0x0009 of slave 0x01
	message := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A}
	assert.Equal(t, uint16(0x0D70), CheckCrc16sum(message))

	// read holding registers 0x0000..0x0009 of slave 0x01
	message = []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	assert.Equal(t, uint16(0xCDC5), CheckCrc16sum(message))
}

func TestSetCrc16sum(t *testing.T) {
	frame := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00}
	SetCrc16sum(frame)
	assert.Equal(t, byte(0x70), frame[6])
	assert.Equal(t, byte(0x0D), frame[7])
	assert.True(t, VerifyCrc16sum(frame))
}

func TestVerifyCrc16sumBitFlip(t *testing.T) {
	frame := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0D}
	assert.True(t, VerifyCrc16sum(frame))

	for i := 0; i < len(frame)*8; i++ {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[i/8] ^= 1 << (i % 8)
		assert.False(t, VerifyCrc16sum(corrupted), "bit %d", i)
	}
}

func TestVerifyCrc16sumShortFrame(t *testing.T) {
	assert.False(t, VerifyCrc16sum(nil))
	assert.False(t, VerifyCrc16sum([]byte{0x01, 0x84}))
}
