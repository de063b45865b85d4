package transport

import (
	"errors"

	"pzemgateway/pkg/runtime/constant"
)

// EventType classifies what the receive side of an IOPort observed.
type EventType int8

const (
	// EventData signals buffered inbound bytes, Event.Size holds the count.
	EventData EventType = iota
	// EventFifoOverflow signals the driver FIFO overflowed, input is garbage.
	EventFifoOverflow
	// EventBufferFull signals the receive ring buffer filled up.
	EventBufferFull
	// EventBreak signals a break condition on the line.
	EventBreak
	// EventFrameError signals a framing error on the line.
	EventFrameError
)

var (
	ErrPortClosed    = errors.New("io port closed")
	ErrInvalidConfig = errors.New("invalid uart configuration")
)

// Event is one receive-side occurrence on an IOPort.
type Event struct {
	Type EventType
	Size int
}

// IOPort is the byte source/sink a Port arbitrates. Implementations own the
// underlying line, buffer inbound bytes and signal their arrival as events.
type IOPort interface {
	// Events returns the receive event channel. The channel is closed when
	// the port is closed.
	Events() <-chan Event

	// ReadBytes drains up to len(buf) buffered inbound bytes.
	ReadBytes(buf []byte) (int, error)

	// WriteBytes writes the whole buffer to the line.
	WriteBytes(buf []byte) (int, error)

	// FlushInput discards all buffered inbound bytes.
	FlushInput() error

	// ResetEventQueue discards pending receive events.
	ResetEventQueue()

	Close() error
}

// UartConfig describes one serial line. Pin routing only applies to hosts
// with a pin mux, it is ignored for fixed-wired adapters.
type UartConfig struct {
	Device      string               `json:"device"`
	RxPin       int                  `json:"rxPin,omitempty"`
	TxPin       int                  `json:"txPin,omitempty"`
	BaudRate    int                  `json:"baudRate"`
	DataBits    int                  `json:"dataBits"`
	Parity      constant.Parity      `json:"parity"`
	StopBits    constant.StopBits    `json:"stopBits"`
	FlowControl constant.FlowControl `json:"flowControl"`
}

const (
	// DefaultBaudRate is the only rate the meters speak.
	DefaultBaudRate = 9600
	// PinNoChange keeps the host default pin routing.
	PinNoChange = -1
)

// NewUartConfig returns the 9600-8N1 profile of the AC meters.
func NewUartConfig(device string) UartConfig {
	return UartConfig{
		Device:      device,
		RxPin:       PinNoChange,
		TxPin:       PinNoChange,
		BaudRate:    DefaultBaudRate,
		DataBits:    8,
		Parity:      constant.NoParity,
		StopBits:    constant.OneStopBit,
		FlowControl: constant.NoFlowControl,
	}
}

// NewUartConfigDC returns the 9600-8N2 profile of the DC meters.
func NewUartConfigDC(device string) UartConfig {
	cfg := NewUartConfig(device)
	cfg.StopBits = constant.TwoStopBits
	return cfg
}
