package transport

import (
	"sync"
	"time"

	"go.bug.st/serial"
	"k8s.io/klog/v2"

	"pzemgateway/pkg/runtime/constant"
)

const (
	// interFrameSilence separates two RTU frames on an idle line. A read
	// timeout of this length marks the end of the buffered frame.
	interFrameSilence = 20 * time.Millisecond

	eventQueueDepth = 10
	readChunkSize   = 256
)

var parityToSerial = map[constant.Parity]serial.Parity{
	constant.NoParity:    serial.NoParity,
	constant.OddParity:   serial.OddParity,
	constant.EvenParity:  serial.EvenParity,
	constant.MarkParity:  serial.MarkParity,
	constant.SpaceParity: serial.SpaceParity,
}

var stopBitsToSerial = map[constant.StopBits]serial.StopBits{
	constant.OneStopBit:           serial.OneStopBit,
	constant.OnePointFiveStopBits: serial.OnePointFiveStopBits,
	constant.TwoStopBits:          serial.TwoStopBits,
}

// SerialPort drives one UART through go.bug.st/serial. A pump goroutine
// accumulates line bytes until an inter-frame gap, then posts a data event.
type SerialPort struct {
	device string
	port   serial.Port

	mu      sync.Mutex
	pending []byte
	closed  bool

	events chan Event
	stopCh chan struct{}
	done   chan struct{}
}

var _ IOPort = (*SerialPort)(nil)

// NewSerialPort opens the serial device. A refused configuration is fatal,
// there is no retry.
func NewSerialPort(cfg UartConfig) (*SerialPort, error) {
	if len(cfg.Device) == 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parityToSerial[cfg.Parity],
		StopBits: stopBitsToSerial[cfg.StopBits],
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		klog.V(2).InfoS("Failed to open serial port", "device", cfg.Device, "err", err)
		return nil, err
	}
	if err := port.SetReadTimeout(interFrameSilence); err != nil {
		_ = port.Close()
		return nil, err
	}

	sp := &SerialPort{
		device: cfg.Device,
		port:   port,
		events: make(chan Event, eventQueueDepth),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sp.pump()

	return sp, nil
}

func (sp *SerialPort) Events() <-chan Event {
	return sp.events
}

func (sp *SerialPort) ReadBytes(buf []byte) (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return 0, ErrPortClosed
	}
	n := copy(buf, sp.pending)
	sp.pending = sp.pending[n:]
	return n, nil
}

func (sp *SerialPort) WriteBytes(buf []byte) (int, error) {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return 0, ErrPortClosed
	}
	sp.mu.Unlock()

	return sp.port.Write(buf)
}

func (sp *SerialPort) FlushInput() error {
	sp.mu.Lock()
	sp.pending = nil
	closed := sp.closed
	sp.mu.Unlock()
	if closed {
		return ErrPortClosed
	}
	return sp.port.ResetInputBuffer()
}

func (sp *SerialPort) ResetEventQueue() {
	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()
	if closed {
		return
	}
	for {
		select {
		case <-sp.events:
		default:
			return
		}
	}
}

func (sp *SerialPort) Close() error {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return nil
	}
	sp.closed = true
	sp.mu.Unlock()

	close(sp.stopCh)
	err := sp.port.Close()
	<-sp.done
	return err
}

// pump reads the line. Bytes are collected until a read timeout (the
// inter-frame gap), then handed upward as one data event.
func (sp *SerialPort) pump() {
	defer close(sp.done)
	defer close(sp.events)

	buf := make([]byte, readChunkSize)
	var frame []byte

	for {
		select {
		case <-sp.stopCh:
			return
		default:
		}

		n, err := sp.port.Read(buf)
		if err != nil {
			select {
			case <-sp.stopCh:
				return
			default:
			}
			klog.V(2).InfoS("Failed to read serial port", "device", sp.device, "err", err)
			sp.postEvent(Event{Type: EventFrameError})
			// transient line errors resolve between transactions
			time.Sleep(interFrameSilence)
			continue
		}

		if n == 0 {
			// read timeout: the accumulated bytes form a complete frame
			if len(frame) > 0 {
				sp.mu.Lock()
				sp.pending = append(sp.pending, frame...)
				sp.mu.Unlock()
				sp.postEvent(Event{Type: EventData, Size: len(frame)})
				frame = nil
			}
			continue
		}

		frame = append(frame, buf[:n]...)
	}
}

func (sp *SerialPort) postEvent(ev Event) {
	select {
	case sp.events <- ev:
	default:
		klog.V(2).InfoS("Serial event queue overflow", "device", sp.device)
	}
}
