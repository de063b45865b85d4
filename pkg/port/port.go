package port

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/transport"
)

const (
	// ReplyTimeout bounds the wait for the previous transaction's reply
	// before the next request goes out anyway.
	ReplyTimeout = 100 * time.Millisecond

	// txQueueDepth bounds the transmit queue.
	txQueueDepth = 8
)

// RxHandler consumes inbound frames. The frame is only valid for the
// duration of the call, handlers must copy what they keep.
type RxHandler func(*modbus.RxFrame)

// Port owns one serial line and keeps at most one request in flight.
// A started port runs exactly two goroutines: a transmitter draining the
// queue and a receiver feeding the handler. The single-permit ready-to-send
// signal released by the receiver serialises transactions on the
// half-duplex bus.
type Port struct {
	ID uint8

	descr string
	io    transport.IOPort

	txq chan *modbus.TxFrame
	rts chan struct{}

	running *atomic.Bool

	mu        sync.Mutex
	rxHandler RxHandler

	stopTx chan struct{}
	wg     sync.WaitGroup
}

// NewPort wraps an already opened IO port.
func NewPort(id uint8, io transport.IOPort, descr string) *Port {
	if len(descr) == 0 {
		descr = fmt.Sprintf("Port-%d", id)
	}
	return &Port{
		ID:      id,
		descr:   descr,
		io:      io,
		txq:     make(chan *modbus.TxFrame, txQueueDepth),
		rts:     make(chan struct{}, 1),
		running: atomic.NewBool(false),
		stopTx:  make(chan struct{}),
	}
}

// NewSerialPort opens the configured UART and wraps it. A driver install
// failure is fatal, the port is not created.
func NewSerialPort(id uint8, cfg transport.UartConfig, descr string) (*Port, error) {
	io, err := transport.NewSerialPort(cfg)
	if err != nil {
		return nil, err
	}
	return NewPort(id, io, descr), nil
}

func (p *Port) Descr() string {
	return p.descr
}

// Active reports whether the queue tasks are running.
func (p *Port) Active() bool {
	return p.running.Load()
}

// Start spawns the receive and transmit tasks.
func (p *Port) Start() bool {
	if !p.running.CAS(false, true) {
		return true
	}

	p.wg.Add(2)
	go p.rxTask()
	go p.txTask()

	klog.V(1).InfoS("Started port queues", "port", p.ID, "descr", p.descr)
	return true
}

// Stop halts the transmitter, drains and destroys all queued requests,
// halts the receiver and releases the underlying IO port. A stopped port
// does not restart.
func (p *Port) Stop() {
	if !p.running.CAS(true, false) {
		// never ran or already stopped, still release the io handle
		_ = p.io.Close()
		return
	}

	close(p.stopTx)

	// destroy whatever never made it to the line
	for {
		select {
		case <-p.txq:
			continue
		default:
		}
		break
	}

	// closing the IO port ends its event channel and the receive task
	if err := p.io.Close(); err != nil {
		klog.V(2).InfoS("Failed to close io port", "port", p.ID, "err", err)
	}
	p.wg.Wait()

	klog.V(1).InfoS("Stopped port queues", "port", p.ID, "descr", p.descr)
}

// Enqueue hands a request over to the transmit queue. The port owns the
// frame from here on, even when the queue is full or the port is stopped.
func (p *Port) Enqueue(msg *modbus.TxFrame) bool {
	if msg == nil {
		return false
	}
	if !p.running.Load() {
		return false
	}

	select {
	case p.txq <- msg:
		return true
	default:
		klog.V(2).InfoS("Transmit queue full", "port", p.ID)
		return false
	}
}

// AttachRxHandler feeds arriving frames to f. Without a handler all
// inbound data is discarded.
func (p *Port) AttachRxHandler(f RxHandler) {
	if f == nil {
		return
	}
	p.mu.Lock()
	p.rxHandler = f
	p.mu.Unlock()
}

func (p *Port) DetachRxHandler() {
	p.mu.Lock()
	p.rxHandler = nil
	p.mu.Unlock()
}

func (p *Port) handler() RxHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rxHandler
}

// txTask services the transmit queue. A request expecting a reply consumes
// one ready-to-send permit first, bounded by ReplyTimeout. Requests are
// dropped after hitting the line.
func (p *Port) txTask() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopTx:
			return
		case msg := <-p.txq:
			if msg == nil {
				continue
			}
			if msg.WaitForReply {
				select {
				case <-p.rts:
				case <-time.After(ReplyTimeout):
					// late reply will be flushed by the next receive cycle
					klog.V(3).InfoS("Reply timeout, transmitting anyway", "port", p.ID)
				case <-p.stopTx:
					return
				}
			}

			modbus.TxFrameDebug(msg)
			if _, err := p.io.WriteBytes(msg.Data); err != nil {
				klog.V(2).InfoS("Failed to write frame", "port", p.ID, "err", err)
			}
		}
	}
}

// rxTask services the receive events. It releases the ready-to-send permit
// once per completed receive cycle or transport error, keeping transactions
// strictly one at a time.
func (p *Port) rxTask() {
	defer p.wg.Done()

	for {
		// ready for the next transaction
		select {
		case p.rts <- struct{}{}:
		default:
		}

		ev, ok := <-p.io.Events()
		if !ok {
			return
		}

		switch ev.Type {
		case transport.EventData:
			handler := p.handler()
			if handler == nil {
				// nobody listening, discard
				_ = p.io.FlushInput()
				p.io.ResetEventQueue()
				continue
			}

			buf := make([]byte, ev.Size)
			n, err := p.io.ReadBytes(buf)
			if err != nil || n == 0 {
				klog.V(3).InfoS("Failed to read buffered bytes", "port", p.ID, "err", err)
				_ = p.io.FlushInput()
				p.io.ResetEventQueue()
				continue
			}

			msg := modbus.NewRxFrame(buf[:n])
			modbus.RxFrameDebug(msg)
			handler(msg)

		case transport.EventFifoOverflow:
			klog.V(2).InfoS("RX fifo overflow", "port", p.ID)
			_ = p.io.FlushInput()
			p.io.ResetEventQueue()

		case transport.EventBufferFull:
			klog.V(2).InfoS("RX ring buffer full", "port", p.ID)
			_ = p.io.FlushInput()
			p.io.ResetEventQueue()

		case transport.EventBreak, transport.EventFrameError:
			klog.V(2).InfoS("RX line error", "port", p.ID)
			_ = p.io.FlushInput()
		}
	}
}
