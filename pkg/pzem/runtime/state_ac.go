package runtime

import (
	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/utils/binutil"
)

// ACState reflects one AC meter: metrics plus the alarm threshold and the
// configured slave address.
type ACState struct {
	baseState

	data     ACMetrics
	alarmThr uint16
}

var _ State = (*ACState)(nil)

func NewACState(addr uint8) *ACState {
	return &ACState{baseState: newBaseState(ModelAC3, addr)}
}

func (s *ACState) Metrics() Metrics {
	return s.Snapshot()
}

// Snapshot returns a copy of the raw metrics block.
func (s *ACState) Snapshot() ACMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// AlarmThreshold returns the configured power alarm threshold in watts.
func (s *ACState) AlarmThreshold() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarmThr
}

// AlarmActive reports the power alarm flag of the last metrics reply.
func (s *ACState) AlarmActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Alarm == AlarmPresent
}

// ParseRx parses a reply frame and updates the state.
//
// A read-input reply refreshes the metrics block. A read-holding reply
// mirrors the threshold and address registers. A write-single echo mirrors
// the written register, selected by the register index of the echo. An
// energy-reset echo zeroes the stored counter. An error reply records the
// exception code without touching the metrics.
func (s *ACState) ParseRx(m *modbus.RxFrame, skipOnBad bool) bool {
	if !m.Valid && skipOnBad {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Addr() != s.addr && skipOnBad {
		return false
	}

	raw := m.Raw
	switch m.Cmd() {
	case modbus.ReadInputRegister:
		if !s.data.parseBody(raw) {
			s.err = ErrParse
			return false
		}
	case modbus.ReadHoldingRegister:
		if len(raw) >= 7 && raw[2] == uint8(ACHoldingLen*2) {
			s.alarmThr = binutil.ParseUint16BigEndian(raw[3:])
			s.addr = raw[6]
		}
		// unknown regs are left alone
	case modbus.WriteSingleRegister:
		if len(raw) < 6 {
			break
		}
		// raw[3] is the low byte of the echoed register index
		switch uint16(raw[3]) {
		case ACHoldingAddr:
			s.addr = raw[5]
		case ACHoldingAlarmThr:
			s.alarmThr = binutil.ParseUint16BigEndian(raw[4:])
		}
	case modbus.ResetEnergy:
		s.data.Energy = 0
	case modbus.ReadError, modbus.ReadInputError, modbus.WriteError,
		modbus.CalibrateError, modbus.ResetEnergyError:
		if len(raw) >= 3 {
			s.err = ErrCode(raw[2])
		}
		return true
	}

	s.err = ErrOK
	s.markUpdated()
	return true
}
