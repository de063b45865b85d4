package pzem

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/port"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/runtime/constant"
	"pzemgateway/pkg/transport"
)

// poolNode links one meter to the port carrying it.
type poolNode struct {
	port  *port.Port
	meter *Meter
}

// Pool multiplexes many meters across one or more ports. The pool claims
// every port's receive handler for its own dispatcher and routes replies by
// the (port id, slave address) pair, so pooled meters use their port as a
// transmit sink only.
type Pool struct {
	mu     sync.RWMutex
	ports  map[uint8]*port.Port
	meters map[uint8]*poolNode

	rxCallback RxCallback

	pollPeriod time.Duration
	pollStop   chan struct{}
}

func NewPool() *Pool {
	return &Pool{
		ports:      make(map[uint8]*port.Port),
		meters:     make(map[uint8]*poolNode),
		pollPeriod: PollerPeriod,
	}
}

// AddSerialPort creates a serial port, registers it and starts its queues.
func (p *Pool) AddSerialPort(id uint8, cfg transport.UartConfig, descr string) error {
	prt, err := port.NewSerialPort(id, cfg, descr)
	if err != nil {
		return err
	}
	if err := p.AddPort(prt); err != nil {
		prt.Stop()
		return err
	}
	return nil
}

// AddPort registers an existing port. Its receive handler is redirected to
// the pool dispatcher.
func (p *Pool) AddPort(prt *port.Port) error {
	if prt == nil {
		return constant.ErrPortNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exist := p.ports[prt.ID]; exist {
		return constant.ErrPortExists
	}

	portID := prt.ID
	prt.AttachRxHandler(func(msg *modbus.RxFrame) {
		p.dispatch(msg, portID)
	})
	prt.Start()

	p.ports[prt.ID] = prt
	return nil
}

// AddMeter creates a meter and binds it to a registered port, transmit
// only. Broadcast and catch-all addresses have no place in a pool, neither
// have duplicate ids or two meters sharing an address on one bus.
func (p *Pool) AddMeter(portID, meterID, addr uint8, model pzemruntime.Model, descr string) error {
	if addr < modbus.AddrMin || addr > modbus.AddrMax {
		return constant.ErrMeterAddress
	}

	m, err := NewMeter(meterID, model, addr, descr)
	if err != nil {
		return err
	}
	return p.AddExistingMeter(portID, m)
}

// AddExistingMeter binds an externally created meter to a registered port.
// The meter's own receive wiring and callback are detached first.
func (p *Pool) AddExistingMeter(portID uint8, m *Meter) error {
	if m == nil {
		return constant.ErrMeterModel
	}
	if m.Addr() < modbus.AddrMin || m.Addr() > modbus.AddrMax {
		return constant.ErrMeterAddress
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prt, exist := p.ports[portID]
	if !exist {
		return constant.ErrPortNotFound
	}
	if _, exist := p.meters[m.ID]; exist {
		return constant.ErrMeterExists
	}
	for _, node := range p.meters {
		if node.port.ID == portID && node.meter.Addr() == m.Addr() {
			return constant.ErrAddressInUse
		}
	}

	// replies are routed by the pool dispatcher instead
	m.DetachRxCallback()
	m.DetachPort()
	m.AttachPort(prt, true)

	p.meters[m.ID] = &poolNode{port: prt, meter: m}
	klog.V(2).InfoS("Registered meter", "meter", m.ID, "port", portID,
		"addr", m.Addr(), "model", pzemruntime.ModelToString[m.Model()])
	return nil
}

// RemoveMeter detaches and destroys a pooled meter.
func (p *Pool) RemoveMeter(meterID uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, exist := p.meters[meterID]
	if !exist {
		return false
	}
	node.meter.Close()
	delete(p.meters, meterID)
	return true
}

// ExistPort reports whether a port with this id is registered.
func (p *Pool) ExistPort(id uint8) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exist := p.ports[id]
	return exist
}

// ExistMeter reports whether a meter with this id is registered.
func (p *Pool) ExistMeter(id uint8) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exist := p.meters[id]
	return exist
}

// MeterByID returns a registered meter.
func (p *Pool) MeterByID(id uint8) (*Meter, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	node, exist := p.meters[id]
	if !exist {
		return nil, false
	}
	return node.meter, true
}

// MeterIDs returns the ids of all registered meters.
func (p *Pool) MeterIDs() []uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]uint8, 0, len(p.meters))
	for id := range p.meters {
		ids = append(ids, id)
	}
	return ids
}

// AttachRxCallback registers the pool-level callback fired after dispatch.
func (p *Pool) AttachRxCallback(f RxCallback) {
	if f == nil {
		return
	}
	p.mu.Lock()
	p.rxCallback = f
	p.mu.Unlock()
}

func (p *Pool) DetachRxCallback() {
	p.mu.Lock()
	p.rxCallback = nil
	p.mu.Unlock()
}

// PollAll enqueues a metrics read for every meter. The per-port arbitrator
// naturally serialises the requests sharing a bus.
func (p *Pool) PollAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, node := range p.meters {
		node.meter.Poll()
	}
}

// ResetEnergy locates the meter and requests an energy counter reset.
func (p *Pool) ResetEnergy(meterID uint8) bool {
	m, exist := p.MeterByID(meterID)
	if !exist {
		return false
	}
	return m.ResetEnergyCounter()
}

// GetState returns the state block of a registered meter.
func (p *Pool) GetState(meterID uint8) (pzemruntime.State, bool) {
	m, exist := p.MeterByID(meterID)
	if !exist {
		return nil, false
	}
	return m.State(), true
}

// GetMetrics returns a metrics copy of a registered meter.
func (p *Pool) GetMetrics(meterID uint8) (pzemruntime.Metrics, bool) {
	m, exist := p.MeterByID(meterID)
	if !exist {
		return nil, false
	}
	return m.Metrics(), true
}

// GetDescr returns the description of a registered meter.
func (p *Pool) GetDescr(meterID uint8) (string, bool) {
	m, exist := p.MeterByID(meterID)
	if !exist {
		return "", false
	}
	return m.Descr(), true
}

// Autopoll starts or stops the pool-wide poll timer. Per-meter timers are
// left alone, the pool uses its own cadence for all meters.
func (p *Pool) Autopoll(enable bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if enable {
		if p.pollStop != nil {
			return true
		}
		p.pollStop = runPoller(p.pollPeriod, func() bool {
			p.PollAll()
			return true
		})
		return true
	}

	if p.pollStop == nil {
		return false
	}
	close(p.pollStop)
	p.pollStop = nil
	return true
}

// AutopollActive reports whether the pool poll timer runs.
func (p *Pool) AutopollActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollStop != nil
}

// Pollrate returns the pool poll period.
func (p *Pool) Pollrate() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollPeriod
}

// SetPollrate changes the pool poll period, bounded below by
// PollerMinPeriod.
func (p *Pool) SetPollrate(d time.Duration) bool {
	if d < PollerMinPeriod {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollPeriod = d
	if p.pollStop != nil {
		close(p.pollStop)
		p.pollStop = runPoller(p.pollPeriod, func() bool {
			p.PollAll()
			return true
		})
	}
	return true
}

// Close cancels the poll timer, destroys all meters and force-stops every
// owned port.
func (p *Pool) Close() {
	p.Autopoll(false)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, node := range p.meters {
		node.meter.Close()
		delete(p.meters, id)
	}
	for id, prt := range p.ports {
		prt.Stop()
		delete(p.ports, id)
	}
}

// dispatch routes one reply to the unique meter matching the originating
// port and the frame's address byte. Invalid frames are dropped before any
// lookup, stray replies with no matching meter are dropped silently.
func (p *Pool) dispatch(msg *modbus.RxFrame, portID uint8) {
	if msg == nil {
		return
	}
	if !msg.Valid {
		klog.V(3).InfoS("Dropped reply with bad CRC", "port", portID)
		return
	}

	p.mu.RLock()
	var match *poolNode
	for _, node := range p.meters {
		if node.port.ID == portID && node.meter.Addr() == msg.Addr() {
			match = node
			break
		}
	}
	cb := p.rxCallback
	p.mu.RUnlock()

	if match == nil {
		klog.V(3).InfoS("Stray reply, no matching meter", "port", portID, "addr", msg.Addr())
		return
	}

	match.meter.RxSink(msg)
	if cb != nil {
		cb(match.meter.ID, msg)
	}
}
