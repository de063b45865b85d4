package timeseries

// TimeSeries is a ring buffer of samples conceptually spaced one interval
// apart. Timestamps are caller-supplied atomic units (millis, seconds,
// whatever increases), unsigned wrap-around is well defined as long as
// samples keep arriving regularly.
type TimeSeries[T any] struct {
	*RingBuff[T]

	id    uint8
	descr string

	interval uint32
	tstamp   uint32 // timestamp of the newest stored sample

	avg Averager[T]
}

func NewTimeSeries[T any](capacity int, startTime, interval uint32, id uint8, descr string) *TimeSeries[T] {
	if interval == 0 {
		interval = 1
	}
	return &TimeSeries[T]{
		RingBuff: NewRingBuff[T](capacity),
		id:       id,
		descr:    descr,
		interval: interval,
		tstamp:   startTime,
	}
}

func (ts *TimeSeries[T]) ID() uint8 {
	return ts.id
}

func (ts *TimeSeries[T]) Descr() string {
	return ts.descr
}

func (ts *TimeSeries[T]) Interval() uint32 {
	return ts.interval
}

// LastTime returns the timestamp of the newest stored sample. Earlier
// samples have no stored timestamp, the one at iterator position it is
// derivable as LastTime() - (CEnd().Diff(it)-1) * Interval().
func (ts *TimeSeries[T]) LastTime() uint32 {
	return ts.tstamp
}

// AttachAverager aggregates intermediate samples instead of dropping them.
func (ts *TimeSeries[T]) AttachAverager(a Averager[T]) {
	ts.avg = a
}

func (ts *TimeSeries[T]) DetachAverager() {
	ts.avg = nil
}

// Reset clears the buffer and rebases the series at t.
func (ts *TimeSeries[T]) Reset(t uint32) {
	ts.tstamp = t
	ts.Clear()
	if ts.avg != nil {
		ts.avg.Reset()
	}
}

// Put stores a sample taken at the given time.
//
// Intermediate samples, less than one interval after the previous one, are
// fed to the averager or dropped without one. A gap of several intervals is
// backfilled with the incoming value, a best-effort approximation. A gap
// exceeding the whole buffer clears it and starts over at the new
// timestamp.
func (ts *TimeSeries[T]) Put(val T, now uint32) {
	delta := now - ts.tstamp

	if delta < ts.interval {
		if ts.avg != nil {
			ts.avg.Push(val)
		}
		return
	}

	if delta >= 2*ts.interval {
		if delta/ts.interval > uint32(ts.Capacity()) {
			// missed more samples than the buffer holds
			ts.Reset(now)
		} else {
			for t := delta; t > ts.interval; t -= ts.interval {
				ts.PushBack(val)
			}
		}
	}

	if ts.avg != nil && ts.avg.Count() > 0 {
		// close the finished interval with its aggregate and carry the
		// fresh sample into the next one
		ts.PushBack(ts.avg.Get())
		ts.avg.Reset()
		ts.avg.Push(val)
	} else {
		ts.PushBack(val)
	}

	ts.tstamp = now
}
