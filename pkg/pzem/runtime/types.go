package runtime

import (
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/utils/binutil"
)

// Meter is one of the electric quantities a state can report.
type Meter uint8

const (
	Voltage Meter = iota
	Current
	Power
	Energy
	Frequency
	PowerFactor
	AlarmHigh
	AlarmLow
)

// Metrics is a model-independent view over the raw register values.
type Metrics interface {
	// AsFloat converts the raw register value of m into its unit.
	// Quantities the model does not measure come back as NaN.
	AsFloat(m Meter) float64
	// EnergyWh returns the cumulative energy counter.
	EnergyWh() uint32
}

// State is the mutable per-device block: address, last error, request and
// reply timestamps and the last known metrics. It is written by the receive
// task owning the carrying port, reads return copies.
type State interface {
	Model() Model
	Addr() uint8
	SetAddr(addr uint8)
	LastError() ErrCode

	// Metrics returns a copy of the last parsed metrics.
	Metrics() Metrics

	// ParseRx parses a reply frame into the state. With skipOnBad set,
	// frames with a bad CRC or a foreign slave address are dropped before
	// the parser runs.
	ParseRx(m *modbus.RxFrame, skipOnBad bool) bool

	// MarkPolled records the request time, called on every metrics poll sent.
	MarkPolled()

	// DataAge is the time since the last successful update.
	DataAge() time.Duration

	// DataStale reports whether the last update is older than twice the
	// meter refresh period.
	DataStale() bool
}

// NewState returns the state block for the given model.
func NewState(model Model, addr uint8) (State, error) {
	switch model {
	case ModelAC3:
		return NewACState(addr), nil
	case ModelDC:
		return NewDCState(addr), nil
	default:
		return nil, ErrUnsupportedModel
	}
}

// ACMetrics are the raw-mapped register values of an AC meter.
type ACMetrics struct {
	Voltage     uint16 `json:"voltage"`     // dV
	Current     uint32 `json:"current"`     // mA
	Power       uint32 `json:"power"`       // dW
	Energy      uint32 `json:"energy"`      // Wh
	Frequency   uint16 `json:"frequency"`   // dHz
	PowerFactor uint16 `json:"powerFactor"` // 1/100
	Alarm       uint16 `json:"alarm"`
}

func (m ACMetrics) AsFloat(quantity Meter) float64 {
	switch quantity {
	case Voltage:
		return float64(m.Voltage) / 10
	case Current:
		return float64(m.Current) / 1000
	case Power:
		return float64(m.Power) / 10
	case Energy:
		return float64(m.Energy)
	case Frequency:
		return float64(m.Frequency) / 10
	case PowerFactor:
		return float64(m.PowerFactor) / 100
	case AlarmHigh:
		if m.Alarm == AlarmPresent {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func (m ACMetrics) EnergyWh() uint32 {
	return m.Energy
}

// parseBody fills the metrics from a read-input-registers reply body.
func (m *ACMetrics) parseBody(raw []byte) bool {
	if len(raw) < int(3+ACInputBodyLen) || raw[2] != ACInputBodyLen {
		return false
	}
	value := raw[3:]

	m.Voltage = binutil.ParseUint16BigEndian(value[ACRegVoltage*2:])
	m.Current = binutil.ParseUint32LittleEndianByteSwap(value[ACRegCurrentL*2:])
	m.Power = binutil.ParseUint32LittleEndianByteSwap(value[ACRegPowerL*2:])
	m.Energy = binutil.ParseUint32LittleEndianByteSwap(value[ACRegEnergyL*2:])
	m.Frequency = binutil.ParseUint16BigEndian(value[ACRegFreq*2:])
	m.PowerFactor = binutil.ParseUint16BigEndian(value[ACRegPF*2:])
	m.Alarm = binutil.ParseUint16BigEndian(value[ACRegAlarm*2:])
	return true
}

// DCMetrics are the raw-mapped register values of a DC meter.
type DCMetrics struct {
	Voltage   uint16 `json:"voltage"` // cV
	Current   uint16 `json:"current"` // cA
	Power     uint32 `json:"power"`   // dW
	Energy    uint32 `json:"energy"`  // Wh
	AlarmHigh uint16 `json:"alarmHigh"`
	AlarmLow  uint16 `json:"alarmLow"`
}

func (m DCMetrics) AsFloat(quantity Meter) float64 {
	switch quantity {
	case Voltage:
		return float64(m.Voltage) / 100
	case Current:
		return float64(m.Current) / 100
	case Power:
		return float64(m.Power) / 10
	case Energy:
		return float64(m.Energy)
	case AlarmHigh:
		if m.AlarmHigh == AlarmPresent {
			return 1
		}
		return 0
	case AlarmLow:
		if m.AlarmLow == AlarmPresent {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func (m DCMetrics) EnergyWh() uint32 {
	return m.Energy
}

func (m *DCMetrics) parseBody(raw []byte) bool {
	if len(raw) < int(3+DCInputBodyLen) || raw[2] != DCInputBodyLen {
		return false
	}
	value := raw[3:]

	m.Voltage = binutil.ParseUint16BigEndian(value[DCRegVoltage*2:])
	m.Current = binutil.ParseUint16BigEndian(value[DCRegCurrent*2:])
	m.Power = binutil.ParseUint32LittleEndianByteSwap(value[DCRegPowerL*2:])
	m.Energy = binutil.ParseUint32LittleEndianByteSwap(value[DCRegEnergyL*2:])
	m.AlarmHigh = binutil.ParseUint16BigEndian(value[DCRegAlarmH*2:])
	m.AlarmLow = binutil.ParseUint16BigEndian(value[DCRegAlarmL*2:])
	return true
}

// baseState carries the model-independent part of a state block. Timestamps
// are monotonic microseconds, readable without taking the lock.
type baseState struct {
	model Model

	mu   sync.RWMutex
	addr uint8
	err  ErrCode

	pollUs   *atomic.Int64
	updateUs *atomic.Int64

	started time.Time
}

func newBaseState(model Model, addr uint8) baseState {
	return baseState{
		model:    model,
		addr:     addr,
		pollUs:   atomic.NewInt64(0),
		updateUs: atomic.NewInt64(0),
		started:  time.Now(),
	}
}

func (s *baseState) Model() Model {
	return s.model
}

func (s *baseState) Addr() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *baseState) SetAddr(addr uint8) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
}

func (s *baseState) LastError() ErrCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// nowUs is a monotonic microsecond stamp since state creation.
func (s *baseState) nowUs() int64 {
	return time.Since(s.started).Microseconds()
}

func (s *baseState) MarkPolled() {
	s.pollUs.Store(s.nowUs())
}

func (s *baseState) markUpdated() {
	s.updateUs.Store(s.nowUs())
}

func (s *baseState) DataAge() time.Duration {
	return time.Duration(s.nowUs()-s.updateUs.Load()) * time.Microsecond
}

func (s *baseState) DataStale() bool {
	return s.DataAge() > 2*RefreshPeriod
}
