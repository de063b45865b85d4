package port

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/transport"
	"pzemgateway/pkg/utils/crcutil"
)

func request(addr uint8, wait bool) *modbus.TxFrame {
	return modbus.NewRequest(modbus.ReadInputRegister, 0x0000, 0x000A, addr, wait)
}

func reply(addr uint8) []byte {
	raw := []byte{addr, 0x04, 0x02, 0x08, 0xD1, 0x00, 0x00}
	crcutil.SetCrc16sum(raw)
	return raw
}

// collector records every frame a port hands to its rx handler.
type collector struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 16)}
}

func (c *collector) handle(m *modbus.RxFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte{}, m.Raw...))
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for c.count() < n {
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, got %d", n, c.count())
		}
	}
}

func TestPortRoundTrip(t *testing.T) {
	ioA, ioB := transport.NewNullCable()
	a := NewPort(1, ioA, "")
	b := NewPort(2, ioB, "responder")

	recvA := newCollector()
	a.AttachRxHandler(recvA.handle)

	// the far end answers every request immediately
	b.AttachRxHandler(func(m *modbus.RxFrame) {
		b.Enqueue(&modbus.TxFrame{Data: reply(m.Addr()), WaitForReply: false})
	})

	require.True(t, a.Start())
	require.True(t, b.Start())
	defer a.Stop()
	defer b.Stop()

	assert.True(t, a.Enqueue(request(0x01, true)))
	recvA.wait(t, 1)

	m := modbus.NewRxFrame(recvA.frames[0])
	assert.True(t, m.Valid)
	assert.Equal(t, uint8(0x01), m.Addr())
}

// A delayed responder must hold back the second request: the bytes of
// request N+1 may not hit the line before reply N was delivered.
func TestPortReadyToSendSerialization(t *testing.T) {
	ioA, ioB := transport.NewNullCable()
	a := NewPort(1, ioA, "")
	b := NewPort(2, ioB, "")

	recvA := newCollector()
	a.AttachRxHandler(recvA.handle)

	const responderDelay = 40 * time.Millisecond

	var mu sync.Mutex
	var txTimes []time.Time
	var replyDelivered time.Time

	b.AttachRxHandler(func(m *modbus.RxFrame) {
		mu.Lock()
		txTimes = append(txTimes, time.Now())
		first := len(txTimes) == 1
		mu.Unlock()

		data := reply(m.Addr())
		if first {
			go func() {
				time.Sleep(responderDelay)
				b.Enqueue(&modbus.TxFrame{Data: data})
			}()
			return
		}
		b.Enqueue(&modbus.TxFrame{Data: data})
	})

	a.AttachRxHandler(func(m *modbus.RxFrame) {
		mu.Lock()
		if replyDelivered.IsZero() {
			replyDelivered = time.Now()
		}
		mu.Unlock()
		recvA.handle(m)
	})

	require.True(t, a.Start())
	require.True(t, b.Start())
	defer a.Stop()
	defer b.Stop()

	// back to back requests for two different slaves
	assert.True(t, a.Enqueue(request(0x0A, true)))
	assert.True(t, a.Enqueue(request(0x0B, true)))

	recvA.wait(t, 2)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, txTimes, 2)
	assert.False(t, replyDelivered.IsZero())
	assert.True(t, !txTimes[1].Before(replyDelivered),
		"second request written %v before the first reply was delivered",
		replyDelivered.Sub(txTimes[1]))
	assert.GreaterOrEqual(t, txTimes[1].Sub(txTimes[0]), responderDelay-5*time.Millisecond)
}

func TestPortReplyTimeoutUnblocksTransmitter(t *testing.T) {
	ioA, ioB := transport.NewNullCable()
	a := NewPort(1, ioA, "")

	// the far end never answers
	a.AttachRxHandler(func(m *modbus.RxFrame) {})
	require.True(t, a.Start())
	defer a.Stop()

	start := time.Now()
	assert.True(t, a.Enqueue(request(0x01, true)))
	assert.True(t, a.Enqueue(request(0x02, true)))

	// the second write happens after one reply timeout, not never
	deadline := time.After(2 * time.Second)
	for {
		buf := make([]byte, 64)
		n, err := ioB.ReadBytes(buf)
		require.NoError(t, err)
		if n > 0 && buf[0] == 0x02 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second request never hit the line")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.GreaterOrEqual(t, time.Since(start), ReplyTimeout)
}

func TestPortEnqueueAfterStop(t *testing.T) {
	ioA, _ := transport.NewNullCable()
	p := NewPort(1, ioA, "")

	require.True(t, p.Start())
	assert.True(t, p.Active())
	p.Stop()
	assert.False(t, p.Active())

	assert.False(t, p.Enqueue(request(0x01, true)))
}

func TestPortEnqueueQueueFull(t *testing.T) {
	ioA, _ := transport.NewNullCable()
	p := NewPort(1, ioA, "")
	// not started: nothing drains the queue, but enqueue still refuses
	assert.False(t, p.Enqueue(request(0x01, true)))

	require.True(t, p.Start())
	defer p.Stop()

	// the transmitter blocks on the missing reply permit while the queue
	// fills up behind it
	accepted := 0
	for i := 0; i < 64; i++ {
		if p.Enqueue(request(0x01, true)) {
			accepted++
		}
	}
	assert.Less(t, accepted, 64)
}

func TestPortDropsRxWithoutHandler(t *testing.T) {
	ioA, ioB := transport.NewNullCable()
	p := NewPort(1, ioA, "")
	require.True(t, p.Start())
	defer p.Stop()

	// no handler attached: bytes are discarded without blocking anything
	_, err := ioB.WriteBytes(reply(0x01))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 16)
	n, err := ioA.ReadBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPortStopDrainsQueue(t *testing.T) {
	ioA, _ := transport.NewNullCable()
	p := NewPort(1, ioA, "")
	require.True(t, p.Start())

	for i := 0; i < 4; i++ {
		p.Enqueue(request(0x01, true))
	}
	p.Stop()
	// no panic, queue drained, stop is idempotent
	p.Stop()
}
