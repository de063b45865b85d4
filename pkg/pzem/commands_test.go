package pzem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pzemgateway/pkg/modbus"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/utils/crcutil"
)

func TestGenerateReadMetricsAC(t *testing.T) {
	m, err := GenerateReadMetrics(pzemruntime.ModelAC3, 0x01)
	require.NoError(t, err)

	// canonical request: 10 input registers from 0x0000, CRC 70 0D on wire
	assert.Equal(t, []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x0A, 0x70, 0x0D}, m.Data)
	assert.True(t, m.WaitForReply)
}

func TestGenerateReadMetricsDC(t *testing.T) {
	m, err := GenerateReadMetrics(pzemruntime.ModelDC, 0x05)
	require.NoError(t, err)

	assert.Equal(t, byte(0x05), m.Data[0])
	assert.Equal(t, modbus.ReadInputRegister, m.Data[1])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x08}, m.Data[2:6])
	assert.True(t, crcutil.VerifyCrc16sum(m.Data))
}

func TestGenerateReadMetricsBroadcast(t *testing.T) {
	m, err := GenerateReadMetrics(pzemruntime.ModelAC3, modbus.AddrBroadcast)
	require.NoError(t, err)
	assert.False(t, m.WaitForReply)
}

func TestGenerateReadMetricsUnknownModel(t *testing.T) {
	_, err := GenerateReadMetrics(pzemruntime.ModelNone, 0x01)
	assert.ErrorIs(t, err, pzemruntime.ErrUnsupportedModel)
}

func TestGenerateReadHoldings(t *testing.T) {
	m, err := GenerateReadHoldings(pzemruntime.ModelAC3, modbus.AddrAny)
	require.NoError(t, err)
	assert.Equal(t, byte(modbus.AddrAny), m.Data[0])
	assert.Equal(t, modbus.ReadHoldingRegister, m.Data[1])
	// AC block: 2 registers from 0x0001
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, m.Data[2:6])

	m, err = GenerateReadHoldings(pzemruntime.ModelDC, 0x02)
	require.NoError(t, err)
	// DC block: 4 registers from 0x0000
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x04}, m.Data[2:6])
}

func TestGenerateSetSlaveAddr(t *testing.T) {
	m, err := GenerateSetSlaveAddr(pzemruntime.ModelAC3, 0x0A, 0x01)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), m.Data[0])
	assert.Equal(t, modbus.WriteSingleRegister, m.Data[1])
	assert.Equal(t, []byte{0x00, 0x02, 0x00, 0x0A}, m.Data[2:6])
}

func TestGenerateSetSlaveAddrClamped(t *testing.T) {
	// out-of-range targets turn into a rewrite of the current address
	for _, bad := range []uint8{0x00, 0xFF} {
		m, err := GenerateSetSlaveAddr(pzemruntime.ModelAC3, bad, 0x07)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x02, 0x00, 0x07}, m.Data[2:6], "target %#x", bad)
		assert.True(t, crcutil.VerifyCrc16sum(m.Data))
	}
}

func TestGenerateSetAlarmThreshold(t *testing.T) {
	m, err := GenerateSetAlarmThreshold(pzemruntime.ModelAC3, 2200, 0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x08, 0x98}, m.Data[2:6])

	_, err = GenerateSetAlarmThreshold(pzemruntime.ModelDC, 2200, 0x01)
	assert.ErrorIs(t, err, pzemruntime.ErrUnsupportedModel)
}

func TestGenerateSetAlarmThresholdsDC(t *testing.T) {
	m, err := GenerateSetAlarmHighThreshold(pzemruntime.ModelDC, 300, 0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x2C}, m.Data[2:6])

	m, err = GenerateSetAlarmLowThreshold(pzemruntime.ModelDC, 100, 0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x64}, m.Data[2:6])

	_, err = GenerateSetAlarmHighThreshold(pzemruntime.ModelAC3, 300, 0x01)
	assert.ErrorIs(t, err, pzemruntime.ErrUnsupportedModel)
}

func TestGenerateSetShunt(t *testing.T) {
	m, err := GenerateSetShunt(pzemruntime.ModelDC, pzemruntime.Shunt300A, 0x02)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x03}, m.Data[2:6])

	_, err = GenerateSetShunt(pzemruntime.ModelAC3, pzemruntime.Shunt100A, 0x02)
	assert.ErrorIs(t, err, pzemruntime.ErrUnsupportedModel)
}

func TestGenerateEnergyReset(t *testing.T) {
	m := GenerateEnergyReset(0x01)
	assert.Len(t, m.Data, 4)
	assert.Equal(t, modbus.ResetEnergy, m.Data[1])
	assert.True(t, crcutil.VerifyCrc16sum(m.Data))
}

func TestGenerateCalibration(t *testing.T) {
	m := GenerateCalibration()
	assert.Equal(t, byte(modbus.AddrAny), m.Data[0])
	assert.Equal(t, modbus.Calibrate, m.Data[1])
}
