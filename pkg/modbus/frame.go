package modbus

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"pzemgateway/pkg/utils/binutil"
	"pzemgateway/pkg/utils/crcutil"
)

// TxFrame is an outbound request with the CRC16 already appended.
// Ownership moves to the port on enqueue, the port drops the frame after
// writing it to the line.
type TxFrame struct {
	Data []byte
	// WaitForReply blocks the transmit queue until the previous transaction
	// finished. Must be false for broadcast requests.
	WaitForReply bool
}

// RxFrame is an inbound reply as read from the line.
type RxFrame struct {
	Raw   []byte
	Valid bool // CRC16 verified at ingest
}

// NewRxFrame wraps raw reply bytes and verifies the trailing CRC16.
func NewRxFrame(raw []byte) *RxFrame {
	return &RxFrame{Raw: raw, Valid: crcutil.VerifyCrc16sum(raw)}
}

// Addr returns the slave address byte.
func (m *RxFrame) Addr() uint8 {
	if len(m.Raw) == 0 {
		return 0
	}
	return m.Raw[0]
}

// Cmd returns the function code byte.
func (m *RxFrame) Cmd() uint8 {
	if len(m.Raw) < 2 {
		return 0
	}
	return m.Raw[1]
}

// IsError reports whether the function code has the error bit set.
func (m *RxFrame) IsError() bool {
	return m.Cmd()&0x80 != 0
}

// ExceptionCode returns the one-byte exception code of an error reply.
func (m *RxFrame) ExceptionCode() uint8 {
	if !m.IsError() || len(m.Raw) < 3 {
		return 0
	}
	return m.Raw[2]
}

// Len returns the full frame length including the CRC.
func (m *RxFrame) Len() int {
	return len(m.Raw)
}

// NewRequest builds the generic 8-byte request frame
// addr(1) cmd(1) regAddr_be(2) value_be(2) crc_le(2).
func NewRequest(cmd uint8, regAddr uint16, value uint16, slaveAddr uint8, waitForReply bool) *TxFrame {
	data := make([]byte, genericMsgSize)
	data[0] = slaveAddr
	data[1] = cmd
	binutil.WriteUint16(data[2:], regAddr)
	binutil.WriteUint16(data[4:], value)
	crcutil.SetCrc16sum(data)

	return &TxFrame{Data: data, WaitForReply: waitForReply}
}

// NewEnergyResetRequest builds the short 4-byte reset frame addr cmd crc_le.
func NewEnergyResetRequest(slaveAddr uint8) *TxFrame {
	data := make([]byte, energyResetMsgSize)
	data[0] = slaveAddr
	data[1] = ResetEnergy
	crcutil.SetCrc16sum(data)

	return &TxFrame{Data: data, WaitForReply: slaveAddr != AddrBroadcast}
}

// NewCalibrationRequest builds the factory calibration frame. The opcode is
// passed through as-is, no calibration flow is implemented on top of it.
func NewCalibrationRequest() *TxFrame {
	return NewRequest(Calibrate, CalibrationPassword, CalibrationPassword, CalibrationAddr, true)
}

// ClampSlaveAddr keeps current when next is outside the assignable range,
// turning an out-of-range address change into a no-op rewrite.
func ClampSlaveAddr(next, current uint8) uint8 {
	if next < AddrMin || next > AddrMax {
		return current
	}
	return next
}

func hexDump(data []byte) string {
	var b strings.Builder
	for _, v := range data {
		fmt.Fprintf(&b, "%02x ", v)
	}
	return strings.TrimSpace(b.String())
}

// TxFrameDebug dumps an outbound frame at wire-level verbosity.
func TxFrameDebug(m *TxFrame) {
	klog.V(5).InfoS("TX packet", "len", len(m.Data), "hex", hexDump(m.Data))
}

// RxFrameDebug dumps an inbound frame at wire-level verbosity.
func RxFrameDebug(m *RxFrame) {
	crc := "BAD"
	if m.Valid {
		crc = "OK"
	}
	klog.V(5).InfoS("RX packet", "len", m.Len(), "crc", crc, "hex", hexDump(m.Raw))
}
