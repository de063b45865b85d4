package runtime

import (
	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/utils/binutil"
)

// DCState reflects one DC meter: metrics plus both alarm thresholds, the
// configured slave address and the shunt range.
type DCState struct {
	baseState

	data      DCMetrics
	alarmHThr uint16
	alarmLThr uint16
	shunt     Shunt
}

var _ State = (*DCState)(nil)

func NewDCState(addr uint8) *DCState {
	return &DCState{baseState: newBaseState(ModelDC, addr)}
}

func (s *DCState) Metrics() Metrics {
	return s.Snapshot()
}

// Snapshot returns a copy of the raw metrics block.
func (s *DCState) Snapshot() DCMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// AlarmHighThreshold returns the high voltage alarm threshold.
func (s *DCState) AlarmHighThreshold() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarmHThr
}

// AlarmLowThreshold returns the low voltage alarm threshold.
func (s *DCState) AlarmLowThreshold() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarmLThr
}

// Shunt returns the configured current range.
func (s *DCState) Shunt() Shunt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shunt
}

// AlarmHighActive reports the high alarm flag of the last metrics reply.
func (s *DCState) AlarmHighActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AlarmHigh == AlarmPresent
}

// AlarmLowActive reports the low alarm flag of the last metrics reply.
func (s *DCState) AlarmLowActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AlarmLow == AlarmPresent
}

// ParseRx parses a reply frame and updates the state, see ACState.ParseRx
// for the per-function semantics.
func (s *DCState) ParseRx(m *modbus.RxFrame, skipOnBad bool) bool {
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
		if len(raw) >= 11 && raw[2] == uint8(DCHoldingLen*2) {
			s.alarmHThr = binutil.ParseUint16BigEndian(raw[3:])
			s.alarmLThr = binutil.ParseUint16BigEndian(raw[5:])
			s.addr = raw[8]
			s.shunt = Shunt(raw[10])
		}
		// unknown regs are left alone
	case modbus.WriteSingleRegister:
		if len(raw) < 6 {
			break
		}
		// raw[3] is the low byte of the echoed register index
		switch uint16(raw[3]) {
		case DCHoldingAlarmHigh:
			s.alarmHThr = binutil.ParseUint16BigEndian(raw[4:])
		case DCHoldingAlarmLow:
			s.alarmLThr = binutil.ParseUint16BigEndian(raw[4:])
		case DCHoldingAddr:
			s.addr = raw[5]
		case DCHoldingShunt:
			s.shunt = Shunt(raw[5])
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
