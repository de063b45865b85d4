package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pzemgateway/pkg/utils/crcutil"
)

func TestNewRequest(t *testing.T) {
	m := NewRequest(ReadInputRegister, 0x0000, 0x000A, 0x01, true)

	assert.Equal(t, []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0D}, m.Data)
	assert.True(t, m.WaitForReply)
	assert.True(t, crcutil.VerifyCrc16sum(m.Data))
}

func TestNewRequestBroadcast(t *testing.T) {
	m := NewRequest(WriteSingleRegister, 0x0002, 0x0005, AddrBroadcast, false)

	assert.Equal(t, AddrBroadcast, m.Data[0])
	assert.False(t, m.WaitForReply)
	assert.True(t, crcutil.VerifyCrc16sum(m.Data))
}

func TestNewEnergyResetRequest(t *testing.T) {
	m := NewEnergyResetRequest(0x01)

	assert.Len(t, m.Data, 4)
	assert.Equal(t, byte(0x01), m.Data[0])
	assert.Equal(t, ResetEnergy, m.Data[1])
	assert.True(t, m.WaitForReply)
	assert.True(t, crcutil.VerifyCrc16sum(m.Data))

	b := NewEnergyResetRequest(AddrBroadcast)
	assert.False(t, b.WaitForReply)
}

func TestClampSlaveAddr(t *testing.T) {
	assert.Equal(t, uint8(0x0A), ClampSlaveAddr(0x0A, 0x01))
	// out of range rewrites the current address
	assert.Equal(t, uint8(0x01), ClampSlaveAddr(AddrAny, 0x01))
	assert.Equal(t, uint8(0x01), ClampSlaveAddr(0x00, 0x01))
	assert.Equal(t, uint8(0x01), ClampSlaveAddr(0xFF, 0x01))
}

func TestRxFrame(t *testing.T) {
	raw := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0D}
	m := NewRxFrame(raw)

	assert.True(t, m.Valid)
	assert.Equal(t, uint8(0x01), m.Addr())
	assert.Equal(t, ReadInputRegister, m.Cmd())
	assert.False(t, m.IsError())
	assert.Equal(t, 8, m.Len())
}

func TestRxFrameBadCrc(t *testing.T) {
	raw := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0E}
	m := NewRxFrame(raw)

	assert.False(t, m.Valid)
}

func TestRxFrameException(t *testing.T) {
	raw := []byte{0x01, ReadInputError, ExceptionIllegalAddress, 0x00, 0x00}
	crcutil.SetCrc16sum(raw)
	m := NewRxFrame(raw)

	assert.True(t, m.Valid)
	assert.True(t, m.IsError())
	assert.Equal(t, ExceptionIllegalAddress, m.ExceptionCode())
}
