package modbus

// Function codes of the PZEM MODBUS-RTU dialect.
const (
	ReadHoldingRegister uint8 = 0x03 // read RW registers
	ReadInputRegister   uint8 = 0x04 // read RO registers
	WriteSingleRegister uint8 = 0x06
	Calibrate           uint8 = 0x41
	ResetEnergy         uint8 = 0x42

	ReadError        uint8 = 0x83
	ReadInputError   uint8 = 0x84
	WriteError       uint8 = 0x86
	CalibrateError   uint8 = 0xC1
	ResetEnergyError uint8 = 0xC2
)

// Slave addressing.
const (
	AddrBroadcast uint8 = 0x00 // slaves do not answer here
	AddrMin       uint8 = 0x01
	AddrMax       uint8 = 0xF7
	AddrAny       uint8 = 0xF8 // catch-all, valid with a single device on the bus
)

// Exception codes carried in the body of an error reply.
const (
	ExceptionIllegalFunction uint8 = 0x01
	ExceptionIllegalAddress  uint8 = 0x02
	ExceptionIllegalData     uint8 = 0x03
	ExceptionSlaveError      uint8 = 0x04
)

// Factory calibration constants.
const (
	CalibrationAddr            = AddrAny
	CalibrationPassword uint16 = 0x3721
)

const (
	genericMsgSize     = 8
	energyResetMsgSize = 4
)

// MaxFrameSize is the MODBUS ADU limit: addr(1) + pdu(253) + crc16(2).
const MaxFrameSize = 256
