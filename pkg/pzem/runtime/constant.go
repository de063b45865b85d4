package runtime

import (
	"errors"
	"time"
)

// Model tags the meter family a device belongs to. The tag selects the
// register map and the reply parser.
type Model uint8

const (
	ModelNone Model = iota
	// ModelAC3 is the single-phase AC meter, protocol v3.0 (PZEM-004T
	// family, same silicon as PZEM-014/016).
	ModelAC3
	// ModelDC is the DC meter with an external shunt (PZEM-003/017).
	ModelDC
)

var ModelToString = map[Model]string{
	ModelNone: "none",
	ModelAC3:  "AC_V3",
	ModelDC:   "DC",
}

var StringToModel = map[string]Model{
	"none":  ModelNone,
	"AC_V3": ModelAC3,
	"DC":    ModelDC,
}

// ErrCode is the device error state carried in State. Values 1..4 are the
// MODBUS exception codes as sent by the meter.
type ErrCode uint8

const (
	ErrOK    ErrCode = 0
	ErrFunc  ErrCode = 1 // illegal function
	ErrAddr  ErrCode = 2 // illegal address
	ErrData  ErrCode = 3 // illegal data
	ErrSlave ErrCode = 4 // slave error
	ErrParse ErrCode = 5 // reply failed to parse
)

var ErrCodeToString = map[ErrCode]string{
	ErrOK:    "ok",
	ErrFunc:  "illegalFunction",
	ErrAddr:  "illegalAddress",
	ErrData:  "illegalData",
	ErrSlave: "slaveError",
	ErrParse: "parseError",
}

// Shunt selects the external current sensor range of a DC meter.
type Shunt uint8

const (
	Shunt100A Shunt = 0
	Shunt50A  Shunt = 1
	Shunt200A Shunt = 2
	Shunt300A Shunt = 3
)

var ShuntToString = map[Shunt]string{
	Shunt100A: "100A",
	Shunt50A:  "50A",
	Shunt200A: "200A",
	Shunt300A: "300A",
}

var StringToShunt = map[string]Shunt{
	"100A": Shunt100A,
	"50A":  Shunt50A,
	"200A": Shunt200A,
	"300A": Shunt300A,
}

// AC meter input registers, 1 word each, starting at 0x0000.
const (
	ACRegVoltage  uint16 = 0x0000 // 1 LSB = 0.1 V
	ACRegCurrentL uint16 = 0x0001 // 1 LSB = 0.001 A
	ACRegCurrentH uint16 = 0x0002
	ACRegPowerL   uint16 = 0x0003 // 1 LSB = 0.1 W
	ACRegPowerH   uint16 = 0x0004
	ACRegEnergyL  uint16 = 0x0005 // 1 LSB = 1 Wh
	ACRegEnergyH  uint16 = 0x0006
	ACRegFreq     uint16 = 0x0007 // 1 LSB = 0.1 Hz
	ACRegPF       uint16 = 0x0008 // 1 LSB = 0.01
	ACRegAlarm    uint16 = 0x0009 // 0xFFFF alarm, 0x0000 no alarm

	ACInputBegin   uint16 = 0x0000
	ACInputLen     uint16 = 0x0A
	ACInputBodyLen uint8  = 0x14
)

// AC meter holding registers.
const (
	ACHoldingAlarmThr uint16 = 0x0001 // 1 LSB = 1 W
	ACHoldingAddr     uint16 = 0x0002 // assignable range 0x0001..0x00F7

	ACHoldingBegin uint16 = 0x0001
	ACHoldingLen   uint16 = 2
)

// DC meter input registers, starting at 0x0000.
const (
	DCRegVoltage uint16 = 0x0000 // 1 LSB = 0.01 V
	DCRegCurrent uint16 = 0x0001 // 1 LSB = 0.01 A
	DCRegPowerL  uint16 = 0x0002 // 1 LSB = 0.1 W
	DCRegPowerH  uint16 = 0x0003
	DCRegEnergyL uint16 = 0x0004 // 1 LSB = 1 Wh
	DCRegEnergyH uint16 = 0x0005
	DCRegAlarmH  uint16 = 0x0006 // 0xFFFF alarm, 0x0000 no alarm
	DCRegAlarmL  uint16 = 0x0007

	DCInputBegin   uint16 = 0x0000
	DCInputLen     uint16 = 0x08
	DCInputBodyLen uint8  = 0x10
)

// DC meter holding registers.
const (
	DCHoldingAlarmHigh uint16 = 0x0000
	DCHoldingAlarmLow  uint16 = 0x0001
	DCHoldingAddr      uint16 = 0x0002
	DCHoldingShunt     uint16 = 0x0003 // 0:100A 1:50A 2:200A 3:300A

	DCHoldingBegin uint16 = 0x0000
	DCHoldingLen   uint16 = 4
)

// Power alarm register values.
const (
	AlarmPresent uint16 = 0xFFFF
	AlarmAbsent  uint16 = 0x0000
)

// RefreshPeriod is how often a meter refreshes its internal registers.
// Polling faster returns the same data again.
const RefreshPeriod = time.Second

var (
	ErrUnsupportedModel = errors.New("operation not supported by this meter model")
)
