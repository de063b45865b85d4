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
	"pzemgateway/pkg/transport"
)

// exclusiveMeter wires a meter to one end of a null cable in exclusive
// receive mode and returns the far end for the test to play the device.
func exclusiveMeter(t *testing.T, model pzemruntime.Model, addr uint8) (*Meter, *transport.NullPort) {
	t.Helper()
	ioA, ioB := transport.NewNullCable()

	p := port.NewPort(1, ioA, "")
	require.True(t, p.Start())
	t.Cleanup(p.Stop)
	t.Cleanup(func() { _ = ioB.Close() })

	m, err := NewMeter(1, model, addr, "")
	require.NoError(t, err)
	m.AttachPort(p, false)
	t.Cleanup(m.Close)
	return m, ioB
}

func awaitLine(t *testing.T, far *transport.NullPort, want func([]byte) bool) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		buf := make([]byte, 64)
		n, err := far.ReadBytes(buf)
		require.NoError(t, err)
		if n > 0 && want(buf[:n]) {
			return buf[:n]
		}
		select {
		case <-deadline:
			t.Fatal("expected request never hit the line")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMeterPollAndParse(t *testing.T) {
	m, far := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)

	var mu sync.Mutex
	var got []uint8
	fired := make(chan struct{}, 4)
	m.AttachRxCallback(func(id uint8, rx *modbus.RxFrame) {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
		fired <- struct{}{}
	})

	require.True(t, m.Poll())
	req := awaitLine(t, far, func(b []byte) bool { return b[1] == modbus.ReadInputRegister })
	assert.Equal(t, uint8(0x01), req[0])

	_, err := far.WriteBytes(acReply(0x01, 2257))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("rx callback never fired")
	}

	assert.Equal(t, uint16(2257), m.State().(*pzemruntime.ACState).Snapshot().Voltage)
	mu.Lock()
	assert.Equal(t, []uint8{1}, got)
	mu.Unlock()
}

func TestMeterCallbackFiresForForeignReply(t *testing.T) {
	m, far := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)

	fired := make(chan struct{}, 1)
	m.AttachRxCallback(func(id uint8, rx *modbus.RxFrame) {
		fired <- struct{}{}
	})

	// wrong address: the parser skips it, the callback still routes it
	_, err := far.WriteBytes(acReply(0x33, 2000))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback should fire for unknown replies")
	}
	assert.Equal(t, uint16(0), m.State().(*pzemruntime.ACState).Snapshot().Voltage)
}

func TestMeterResetEnergyCounter(t *testing.T) {
	m, far := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)

	require.True(t, m.ResetEnergyCounter())
	req := awaitLine(t, far, func(b []byte) bool { return b[1] == modbus.ResetEnergy })
	assert.Len(t, req, 4)
}

func TestMeterSetShuntModelGate(t *testing.T) {
	dc, far := exclusiveMeter(t, pzemruntime.ModelDC, 0x02)
	require.True(t, dc.SetShunt(pzemruntime.Shunt200A))
	awaitLine(t, far, func(b []byte) bool {
		return b[1] == modbus.WriteSingleRegister && b[3] == 0x03 && b[5] == 0x02
	})

	ac, _ := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)
	assert.False(t, ac.SetShunt(pzemruntime.Shunt200A))
}

func TestMeterPollrateBounds(t *testing.T) {
	m, _ := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)

	assert.Equal(t, PollerPeriod, m.Pollrate())
	assert.False(t, m.SetPollrate(0))
	assert.False(t, m.SetPollrate(PollerMinPeriod-time.Millisecond))
	assert.Equal(t, PollerPeriod, m.Pollrate())

	assert.True(t, m.SetPollrate(PollerMinPeriod))
	assert.Equal(t, PollerMinPeriod, m.Pollrate())
}

func TestMeterAutopoll(t *testing.T) {
	m, far := exclusiveMeter(t, pzemruntime.ModelAC3, 0x01)
	require.True(t, m.SetPollrate(PollerMinPeriod))

	assert.False(t, m.AutopollActive())
	assert.True(t, m.Autopoll(true))
	assert.True(t, m.AutopollActive())
	assert.True(t, m.Autopoll(true))

	awaitLine(t, far, func(b []byte) bool { return b[1] == modbus.ReadInputRegister })

	assert.True(t, m.Autopoll(false))
	assert.False(t, m.AutopollActive())
}

func TestMeterWithoutPort(t *testing.T) {
	m, err := NewMeter(1, pzemruntime.ModelAC3, 0x01, "")
	require.NoError(t, err)
	assert.False(t, m.Poll())
	assert.False(t, m.ResetEnergyCounter())
}

func TestMeterCatchAllProbe(t *testing.T) {
	m, far := exclusiveMeter(t, pzemruntime.ModelAC3, modbus.AddrAny)

	require.True(t, m.ReadHoldings())
	awaitLine(t, far, func(b []byte) bool { return b[1] == modbus.ReadHoldingRegister })

	// the solitary device answers on the catch-all address, the body
	// carries its configured address
	reply := frameWithCrc(modbus.AddrAny, 0x03, 0x04, 0x08, 0xFC, 0x00, 0x0A)
	_, err := far.WriteBytes(reply)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for m.Addr() != 0x0A {
		select {
		case <-deadline:
			t.Fatalf("address never updated, still %#x", m.Addr())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
