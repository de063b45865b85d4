package pzem

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/port"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
)

const (
	// PollerPeriod is the default auto-poll period. The meters refresh
	// their registers about once a second, polling faster gains nothing.
	PollerPeriod = pzemruntime.RefreshPeriod

	// PollerMinPeriod bounds the pollrate from below so an unresponsive
	// port cannot pile up queued requests.
	PollerMinPeriod = 2 * port.ReplyTimeout
)

// RxCallback is fed with every frame that arrived for a meter, along with
// the meter id. The frame is only valid for the duration of the call.
type RxCallback func(id uint8, m *modbus.RxFrame)

// Meter is one metering device on a bus: its immutable model tag and id,
// the mutable state block, the port it transmits on and an optional
// periodic poll timer.
//
// A meter attached exclusively to a port also claims the port's receive
// handler. Inside a Pool meters are attached transmit-only and replies are
// routed by the pool dispatcher instead.
type Meter struct {
	ID uint8

	descr string
	state pzemruntime.State

	mu         sync.Mutex
	port       *port.Port
	sinkLock   bool // the port's rx handler is ours
	rxCallback RxCallback

	pollPeriod time.Duration
	pollStop   chan struct{}
}

// NewMeter creates a meter of the given model. The catch-all address is
// legal here, it is the pool registration that rejects it.
func NewMeter(id uint8, model pzemruntime.Model, addr uint8, descr string) (*Meter, error) {
	state, err := pzemruntime.NewState(model, addr)
	if err != nil {
		return nil, err
	}
	if len(descr) == 0 {
		descr = fmt.Sprintf("PZEM-%d", id)
	}
	return &Meter{
		ID:         id,
		descr:      descr,
		state:      state,
		pollPeriod: PollerPeriod,
	}, nil
}

func (m *Meter) Descr() string {
	return m.descr
}

func (m *Meter) Model() pzemruntime.Model {
	return m.state.Model()
}

func (m *Meter) Addr() uint8 {
	return m.state.Addr()
}

// State exposes the mutable device state block.
func (m *Meter) State() pzemruntime.State {
	return m.state
}

// Metrics returns a copy of the last known metrics.
func (m *Meter) Metrics() pzemruntime.Metrics {
	return m.state.Metrics()
}

// AttachPort wires the meter to a port. With txOnly unset the meter claims
// the port's receive handler, which is only correct for a solitary meter
// on the bus. Attaching twice is a no-op.
func (m *Meter) AttachPort(p *port.Port, txOnly bool) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port != nil {
		return
	}
	m.port = p

	if txOnly {
		return
	}
	p.AttachRxHandler(m.RxSink)
	m.sinkLock = true
}

// DetachPort unwires the meter, releasing the receive handler if held.
func (m *Meter) DetachPort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return
	}
	if m.sinkLock {
		m.port.DetachRxHandler()
	}
	m.port = nil
	m.sinkLock = false
}

// AttachRxCallback registers the user callback fired on every arriving
// frame for this meter.
func (m *Meter) AttachRxCallback(f RxCallback) {
	if f == nil {
		return
	}
	m.mu.Lock()
	m.rxCallback = f
	m.mu.Unlock()
}

func (m *Meter) DetachRxCallback() {
	m.mu.Lock()
	m.rxCallback = nil
	m.mu.Unlock()
}

// RxSink consumes one inbound frame. Frames with a bad CRC or a foreign
// address skip the parser, the user callback fires for every frame so
// unknown replies can still be routed by the user.
func (m *Meter) RxSink(msg *modbus.RxFrame) {
	if msg == nil {
		return
	}
	m.state.ParseRx(msg, true)

	m.mu.Lock()
	cb := m.rxCallback
	m.mu.Unlock()
	if cb != nil {
		cb(m.ID, msg)
	}
}

// Poll requests a fresh metrics read.
func (m *Meter) Poll() bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateReadMetrics(m.state.Model(), m.state.Addr())
	}, true)
}

// ReadHoldings requests the holding register block: address, alarm
// thresholds and the shunt range on DC meters.
func (m *Meter) ReadHoldings() bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateReadHoldings(m.state.Model(), m.state.Addr())
	}, false)
}

// ResetEnergyCounter requests an energy counter reset.
func (m *Meter) ResetEnergyCounter() bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateEnergyReset(m.state.Addr()), nil
	}, false)
}

// SetSlaveAddr requests an address change. The state is updated when the
// write echo comes back.
func (m *Meter) SetSlaveAddr(newAddr uint8) bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateSetSlaveAddr(m.state.Model(), newAddr, m.state.Addr())
	}, false)
}

// SetAlarmThreshold sets the power alarm threshold of an AC meter.
func (m *Meter) SetAlarmThreshold(watts uint16) bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateSetAlarmThreshold(m.state.Model(), watts, m.state.Addr())
	}, false)
}

// SetAlarmHighThreshold sets the high alarm threshold of a DC meter.
func (m *Meter) SetAlarmHighThreshold(value uint16) bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateSetAlarmHighThreshold(m.state.Model(), value, m.state.Addr())
	}, false)
}

// SetAlarmLowThreshold sets the low alarm threshold of a DC meter.
func (m *Meter) SetAlarmLowThreshold(value uint16) bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateSetAlarmLowThreshold(m.state.Model(), value, m.state.Addr())
	}, false)
}

// SetShunt selects the current range of a DC meter.
func (m *Meter) SetShunt(shunt pzemruntime.Shunt) bool {
	return m.enqueue(func() (*modbus.TxFrame, error) {
		return GenerateSetShunt(m.state.Model(), shunt, m.state.Addr())
	}, false)
}

func (m *Meter) enqueue(build func() (*modbus.TxFrame, error), markPolled bool) bool {
	m.mu.Lock()
	p := m.port
	m.mu.Unlock()
	if p == nil {
		return false
	}

	msg, err := build()
	if err != nil {
		klog.V(2).InfoS("Failed to build request", "meter", m.ID, "err", err)
		return false
	}
	if markPolled {
		m.state.MarkPolled()
	}
	return p.Enqueue(msg)
}

// Autopoll starts or stops the periodic poll timer. The timer callback
// only enqueues a request, it never blocks on IO.
func (m *Meter) Autopoll(enable bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if enable {
		if m.pollStop != nil {
			return true
		}
		m.pollStop = runPoller(m.pollPeriod, m.Poll)
		return true
	}

	if m.pollStop == nil {
		return false
	}
	close(m.pollStop)
	m.pollStop = nil
	return true
}

// AutopollActive reports whether the poll timer runs.
func (m *Meter) AutopollActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollStop != nil
}

// Pollrate returns the poll period.
func (m *Meter) Pollrate() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollPeriod
}

// SetPollrate changes the poll period. Rates below PollerMinPeriod are
// rejected and the previous rate stays in effect.
func (m *Meter) SetPollrate(d time.Duration) bool {
	if d < PollerMinPeriod {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollPeriod = d
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = runPoller(m.pollPeriod, m.Poll)
	}
	return true
}

// Close stops the poll timer and detaches the port.
func (m *Meter) Close() {
	m.Autopoll(false)
	m.DetachPort()
}

// runPoller drives f on a fixed cadence until the returned channel closes.
func runPoller(period time.Duration, f func() bool) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f()
			}
		}
	}()
	return stop
}
