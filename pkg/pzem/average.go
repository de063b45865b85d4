package pzem

import (
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/timeseries"
)

// Mean averagers for time series of meter metrics. Numeric fields are
// summed and integer-divided on Get. The energy counter is cumulative, so
// averaging it would double-count: the last pushed value is assigned
// instead. Alarm words are flags and get the same treatment.

// ACMeanAverage aggregates ACMetrics samples within a series interval.
type ACMeanAverage struct {
	v, c, p, f, pf uint64
	e              uint32
	alarm          uint16
	cnt            int
}

var _ timeseries.Averager[pzemruntime.ACMetrics] = (*ACMeanAverage)(nil)

func NewACMeanAverage() *ACMeanAverage {
	return &ACMeanAverage{}
}

func (a *ACMeanAverage) Push(m pzemruntime.ACMetrics) {
	a.v += uint64(m.Voltage)
	a.c += uint64(m.Current)
	a.p += uint64(m.Power)
	a.f += uint64(m.Frequency)
	a.pf += uint64(m.PowerFactor)
	a.e = m.Energy
	a.alarm = m.Alarm
	a.cnt++
}

func (a *ACMeanAverage) Get() pzemruntime.ACMetrics {
	if a.cnt == 0 {
		return pzemruntime.ACMetrics{}
	}
	n := uint64(a.cnt)
	return pzemruntime.ACMetrics{
		Voltage:     uint16(a.v / n),
		Current:     uint32(a.c / n),
		Power:       uint32(a.p / n),
		Energy:      a.e,
		Frequency:   uint16(a.f / n),
		PowerFactor: uint16(a.pf / n),
		Alarm:       a.alarm,
	}
}

func (a *ACMeanAverage) Reset() {
	*a = ACMeanAverage{}
}

func (a *ACMeanAverage) Count() int {
	return a.cnt
}

// DCMeanAverage aggregates DCMetrics samples within a series interval.
type DCMeanAverage struct {
	v, c, p        uint64
	e              uint32
	alarmH, alarmL uint16
	cnt            int
}

var _ timeseries.Averager[pzemruntime.DCMetrics] = (*DCMeanAverage)(nil)

func NewDCMeanAverage() *DCMeanAverage {
	return &DCMeanAverage{}
}

func (a *DCMeanAverage) Push(m pzemruntime.DCMetrics) {
	a.v += uint64(m.Voltage)
	a.c += uint64(m.Current)
	a.p += uint64(m.Power)
	a.e = m.Energy
	a.alarmH = m.AlarmHigh
	a.alarmL = m.AlarmLow
	a.cnt++
}

func (a *DCMeanAverage) Get() pzemruntime.DCMetrics {
	if a.cnt == 0 {
		return pzemruntime.DCMetrics{}
	}
	n := uint64(a.cnt)
	return pzemruntime.DCMetrics{
		Voltage:   uint16(a.v / n),
		Current:   uint16(a.c / n),
		Power:     uint32(a.p / n),
		Energy:    a.e,
		AlarmHigh: a.alarmH,
		AlarmLow:  a.alarmL,
	}
}

func (a *DCMeanAverage) Reset() {
	*a = DCMeanAverage{}
}

func (a *DCMeanAverage) Count() int {
	return a.cnt
}
