package pzem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pzemruntime "pzemgateway/pkg/pzem/runtime"
)

func TestACMeanAverage(t *testing.T) {
	avg := NewACMeanAverage()
	assert.Equal(t, 0, avg.Count())

	avg.Push(pzemruntime.ACMetrics{Voltage: 2200, Current: 100, Power: 200, Energy: 50, Frequency: 499, PowerFactor: 90})
	avg.Push(pzemruntime.ACMetrics{Voltage: 2300, Current: 200, Power: 300, Energy: 51, Frequency: 501, PowerFactor: 100, Alarm: pzemruntime.AlarmPresent})
	assert.Equal(t, 2, avg.Count())

	m := avg.Get()
	assert.Equal(t, uint16(2250), m.Voltage)
	assert.Equal(t, uint32(150), m.Current)
	assert.Equal(t, uint32(250), m.Power)
	assert.Equal(t, uint16(500), m.Frequency)
	assert.Equal(t, uint16(95), m.PowerFactor)
	// cumulative counter and flags are assigned, not averaged
	assert.Equal(t, uint32(51), m.Energy)
	assert.Equal(t, pzemruntime.AlarmPresent, m.Alarm)

	avg.Reset()
	assert.Equal(t, 0, avg.Count())
	assert.Equal(t, pzemruntime.ACMetrics{}, avg.Get())
}

func TestDCMeanAverage(t *testing.T) {
	avg := NewDCMeanAverage()

	avg.Push(pzemruntime.DCMetrics{Voltage: 1200, Current: 100, Power: 100, Energy: 10})
	avg.Push(pzemruntime.DCMetrics{Voltage: 1300, Current: 200, Power: 200, Energy: 12, AlarmLow: pzemruntime.AlarmPresent})
	avg.Push(pzemruntime.DCMetrics{Voltage: 1250, Current: 300, Power: 300, Energy: 14})

	m := avg.Get()
	assert.Equal(t, uint16(1250), m.Voltage)
	assert.Equal(t, uint16(200), m.Current)
	assert.Equal(t, uint32(200), m.Power)
	assert.Equal(t, uint32(14), m.Energy)
	assert.Equal(t, pzemruntime.AlarmAbsent, m.AlarmLow)
}

func TestACMeanAverageEnergyFollowsLastSample(t *testing.T) {
	// voltage is averaged while energy takes the last pushed value
	avg := NewACMeanAverage()
	sample := func(v uint16) pzemruntime.ACMetrics {
		return pzemruntime.ACMetrics{Voltage: v, Energy: uint32(v)}
	}

	avg.Push(sample(2200))
	avg.Push(sample(2300))
	m := avg.Get()
	assert.Equal(t, uint16(2250), m.Voltage)
	assert.Equal(t, uint32(2300), m.Energy)
}
