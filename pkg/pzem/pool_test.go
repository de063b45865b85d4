package pzem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/port"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/runtime/constant"
	"pzemgateway/pkg/transport"
	"pzemgateway/pkg/utils/crcutil"
)

// frameWithCrc appends a valid CRC16 to the given frame bytes.
func frameWithCrc(body ...byte) []byte {
	raw := append(append([]byte{}, body...), 0x00, 0x00)
	crcutil.SetCrc16sum(raw)
	return raw
}

// acReply builds a valid metrics reply for the given slave address.
func acReply(addr uint8, voltage uint16) []byte {
	raw := []byte{addr, 0x04, 0x14,
		byte(voltage >> 8), byte(voltage),
		0x00, 0x17, 0x00, 0x00,
		0x00, 0xE6, 0x00, 0x00,
		0x00, 0x22, 0x00, 0x00,
		0x01, 0xF4,
		0x00, 0x64,
		0x00, 0x00,
		0x00, 0x00, // crc
	}
	crcutil.SetCrc16sum(raw)
	return raw
}

func newTestPool(t *testing.T) (*Pool, *transport.NullPort) {
	t.Helper()
	ioA, ioB := transport.NewNullCable()

	pool := NewPool()
	require.NoError(t, pool.AddPort(port.NewPort(1, ioA, "bus-under-test")))
	t.Cleanup(pool.Close)
	t.Cleanup(func() { _ = ioB.Close() })
	return pool, ioB
}

func TestPoolAddMeterValidation(t *testing.T) {
	pool, _ := newTestPool(t)

	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, "meter-A"))

	// duplicate meter id
	assert.ErrorIs(t, pool.AddMeter(1, 10, 0x0B, pzemruntime.ModelAC3, ""), constant.ErrMeterExists)
	// duplicate slave address on the same port
	assert.ErrorIs(t, pool.AddMeter(1, 11, 0x0A, pzemruntime.ModelAC3, ""), constant.ErrAddressInUse)
	// broadcast, catch-all and out-of-range addresses are rejected
	assert.ErrorIs(t, pool.AddMeter(1, 12, modbus.AddrBroadcast, pzemruntime.ModelAC3, ""), constant.ErrMeterAddress)
	assert.ErrorIs(t, pool.AddMeter(1, 12, modbus.AddrAny, pzemruntime.ModelAC3, ""), constant.ErrMeterAddress)
	assert.ErrorIs(t, pool.AddMeter(1, 12, 0xFF, pzemruntime.ModelAC3, ""), constant.ErrMeterAddress)
	// unknown port
	assert.ErrorIs(t, pool.AddMeter(9, 12, 0x0C, pzemruntime.ModelAC3, ""), constant.ErrPortNotFound)
	// unknown model
	assert.ErrorIs(t, pool.AddMeter(1, 12, 0x0C, pzemruntime.ModelNone, ""), pzemruntime.ErrUnsupportedModel)

	assert.True(t, pool.ExistMeter(10))
	assert.False(t, pool.ExistMeter(12))
	assert.True(t, pool.ExistPort(1))
}

func TestPoolDispatchRoutesToSingleMeter(t *testing.T) {
	pool, far := newTestPool(t)

	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, "meter-A"))
	require.NoError(t, pool.AddMeter(1, 11, 0x0B, pzemruntime.ModelAC3, "meter-B"))

	var mu sync.Mutex
	var callbackIDs []uint8
	done := make(chan struct{}, 4)
	pool.AttachRxCallback(func(id uint8, m *modbus.RxFrame) {
		mu.Lock()
		callbackIDs = append(callbackIDs, id)
		mu.Unlock()
		done <- struct{}{}
	})

	// inject a valid reply from slave 0x0B
	_, err := far.WriteBytes(acReply(0x0B, 2257))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool callback never fired")
	}

	// only meter B parsed it
	stateB, ok := pool.GetState(11)
	require.True(t, ok)
	assert.Equal(t, uint16(2257), stateB.(*pzemruntime.ACState).Snapshot().Voltage)

	stateA, ok := pool.GetState(10)
	require.True(t, ok)
	assert.Equal(t, uint16(0), stateA.(*pzemruntime.ACState).Snapshot().Voltage)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint8{11}, callbackIDs)
}

func TestPoolDispatchDropsBadCrc(t *testing.T) {
	pool, far := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	fired := make(chan struct{}, 1)
	pool.AttachRxCallback(func(id uint8, m *modbus.RxFrame) {
		fired <- struct{}{}
	})

	corrupted := acReply(0x0A, 2257)
	corrupted[3] ^= 0xFF
	_, err := far.WriteBytes(corrupted)
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("callback fired for a reply with a bad CRC")
	case <-time.After(100 * time.Millisecond):
	}

	state, _ := pool.GetState(10)
	assert.Equal(t, uint16(0), state.(*pzemruntime.ACState).Snapshot().Voltage)
}

func TestPoolDispatchDropsStrayReply(t *testing.T) {
	pool, far := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	fired := make(chan struct{}, 1)
	pool.AttachRxCallback(func(id uint8, m *modbus.RxFrame) {
		fired <- struct{}{}
	})

	// nobody owns address 0x55
	_, err := far.WriteBytes(acReply(0x55, 2257))
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("callback fired for a stray reply")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPoolPollAllHitsTheLine(t *testing.T) {
	pool, far := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	pool.PollAll()

	deadline := time.After(2 * time.Second)
	for {
		buf := make([]byte, 64)
		n, err := far.ReadBytes(buf)
		require.NoError(t, err)
		if n >= 8 {
			assert.Equal(t, uint8(0x0A), buf[0])
			assert.Equal(t, modbus.ReadInputRegister, buf[1])
			break
		}
		select {
		case <-deadline:
			t.Fatal("poll request never hit the line")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPoolResetEnergy(t *testing.T) {
	pool, far := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	assert.True(t, pool.ResetEnergy(10))
	assert.False(t, pool.ResetEnergy(99))

	deadline := time.After(2 * time.Second)
	for {
		buf := make([]byte, 64)
		n, err := far.ReadBytes(buf)
		require.NoError(t, err)
		if n >= 4 {
			assert.Equal(t, modbus.ResetEnergy, buf[1])
			break
		}
		select {
		case <-deadline:
			t.Fatal("reset request never hit the line")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPoolRemoveMeter(t *testing.T) {
	pool, _ := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	assert.True(t, pool.RemoveMeter(10))
	assert.False(t, pool.RemoveMeter(10))
	assert.False(t, pool.ExistMeter(10))

	// the address is free again
	assert.NoError(t, pool.AddMeter(1, 11, 0x0A, pzemruntime.ModelAC3, ""))
}

func TestPoolPollrateBounds(t *testing.T) {
	pool, _ := newTestPool(t)

	assert.False(t, pool.SetPollrate(0))
	assert.False(t, pool.SetPollrate(port.ReplyTimeout))
	previous := pool.Pollrate()
	assert.Equal(t, PollerPeriod, previous)

	assert.True(t, pool.SetPollrate(2*time.Second))
	assert.Equal(t, 2*time.Second, pool.Pollrate())
}

func TestPoolAutopoll(t *testing.T) {
	pool, far := newTestPool(t)
	require.NoError(t, pool.AddMeter(1, 10, 0x0A, pzemruntime.ModelAC3, ""))

	require.True(t, pool.SetPollrate(PollerMinPeriod))
	assert.False(t, pool.AutopollActive())
	assert.True(t, pool.Autopoll(true))
	assert.True(t, pool.AutopollActive())

	deadline := time.After(2 * time.Second)
	for {
		buf := make([]byte, 64)
		n, err := far.ReadBytes(buf)
		require.NoError(t, err)
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("autopoll never produced a request")
		case <-time.After(10 * time.Millisecond):
		}
	}

	assert.True(t, pool.Autopoll(false))
	assert.False(t, pool.AutopollActive())
	assert.False(t, pool.Autopoll(false))
}
