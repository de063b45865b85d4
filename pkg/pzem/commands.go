package pzem

import (
	"pzemgateway/pkg/modbus"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
)

// Request builders. Every builder returns a fully framed request with the
// CRC16 appended. Broadcast requests are framed with WaitForReply unset
// since no reply will come.

// GenerateReadMetrics requests the full input register window of the model.
func GenerateReadMetrics(model pzemruntime.Model, addr uint8) (*modbus.TxFrame, error) {
	switch model {
	case pzemruntime.ModelAC3:
		return modbus.NewRequest(modbus.ReadInputRegister, pzemruntime.ACInputBegin,
			pzemruntime.ACInputLen, addr, addr != modbus.AddrBroadcast), nil
	case pzemruntime.ModelDC:
		return modbus.NewRequest(modbus.ReadInputRegister, pzemruntime.DCInputBegin,
			pzemruntime.DCInputLen, addr, addr != modbus.AddrBroadcast), nil
	default:
		return nil, pzemruntime.ErrUnsupportedModel
	}
}

// GenerateReadHoldings requests the full holding register block. Reading a
// single holding register is indistinguishable from another on the reply
// side, so the whole block is always read and picked apart by the parser.
func GenerateReadHoldings(model pzemruntime.Model, addr uint8) (*modbus.TxFrame, error) {
	switch model {
	case pzemruntime.ModelAC3:
		return modbus.NewRequest(modbus.ReadHoldingRegister, pzemruntime.ACHoldingBegin,
			pzemruntime.ACHoldingLen, addr, addr != modbus.AddrBroadcast), nil
	case pzemruntime.ModelDC:
		return modbus.NewRequest(modbus.ReadHoldingRegister, pzemruntime.DCHoldingBegin,
			pzemruntime.DCHoldingLen, addr, addr != modbus.AddrBroadcast), nil
	default:
		return nil, pzemruntime.ErrUnsupportedModel
	}
}

// GenerateSetSlaveAddr writes a new slave address. An out-of-range address
// is clamped to the current one, turning the request into a no-op echo
// instead of a malformed write.
func GenerateSetSlaveAddr(model pzemruntime.Model, newAddr, currentAddr uint8) (*modbus.TxFrame, error) {
	newAddr = modbus.ClampSlaveAddr(newAddr, currentAddr)

	var reg uint16
	switch model {
	case pzemruntime.ModelAC3:
		reg = pzemruntime.ACHoldingAddr
	case pzemruntime.ModelDC:
		reg = pzemruntime.DCHoldingAddr
	default:
		return nil, pzemruntime.ErrUnsupportedModel
	}
	return modbus.NewRequest(modbus.WriteSingleRegister, reg, uint16(newAddr),
		currentAddr, currentAddr != modbus.AddrBroadcast), nil
}

// GenerateSetAlarmThreshold sets the power alarm threshold in watts on an
// AC meter.
func GenerateSetAlarmThreshold(model pzemruntime.Model, watts uint16, addr uint8) (*modbus.TxFrame, error) {
	if model != pzemruntime.ModelAC3 {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	return modbus.NewRequest(modbus.WriteSingleRegister, pzemruntime.ACHoldingAlarmThr,
		watts, addr, addr != modbus.AddrBroadcast), nil
}

// GenerateSetAlarmHighThreshold sets the high alarm threshold on a DC meter.
func GenerateSetAlarmHighThreshold(model pzemruntime.Model, value uint16, addr uint8) (*modbus.TxFrame, error) {
	if model != pzemruntime.ModelDC {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	return modbus.NewRequest(modbus.WriteSingleRegister, pzemruntime.DCHoldingAlarmHigh,
		value, addr, addr != modbus.AddrBroadcast), nil
}

// GenerateSetAlarmLowThreshold sets the low alarm threshold on a DC meter.
func GenerateSetAlarmLowThreshold(model pzemruntime.Model, value uint16, addr uint8) (*modbus.TxFrame, error) {
	if model != pzemruntime.ModelDC {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	return modbus.NewRequest(modbus.WriteSingleRegister, pzemruntime.DCHoldingAlarmLow,
		value, addr, addr != modbus.AddrBroadcast), nil
}

// GenerateSetShunt selects the current range of a DC meter.
func GenerateSetShunt(model pzemruntime.Model, shunt pzemruntime.Shunt, addr uint8) (*modbus.TxFrame, error) {
	if model != pzemruntime.ModelDC {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	if shunt > pzemruntime.Shunt300A {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	return modbus.NewRequest(modbus.WriteSingleRegister, pzemruntime.DCHoldingShunt,
		uint16(shunt), addr, addr != modbus.AddrBroadcast), nil
}

// GenerateEnergyReset zeroes the cumulative energy counter.
func GenerateEnergyReset(addr uint8) *modbus.TxFrame {
	return modbus.NewEnergyResetRequest(addr)
}

// GenerateCalibration passes the factory calibration opcode through.
func GenerateCalibration() *modbus.TxFrame {
	return modbus.NewCalibrationRequest()
}
