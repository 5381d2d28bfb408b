package cryptstream

import "time"

// progressMeter tracks cumulative bytes for one operation and emits
// throttled snapshots. Each engine operation owns its own meter, so there
// is no shared mutable state across operations.
type progressMeter struct {
	fn        ProgressFunc
	interval  time.Duration
	start     time.Time
	lastEmit  time.Time
	processed uint64
}

// newProgressMeter starts the elapsed-time and report-interval timers for
// one operation. A nil fn makes every emission a no-op.
func newProgressMeter(fn ProgressFunc, interval time.Duration) *progressMeter {
	now := time.Now()
	return &progressMeter{
		fn:       fn,
		interval: interval,
		start:    now,
		lastEmit: now,
	}
}

// Add accumulates processed bytes and emits a snapshot if at least one
// interval has elapsed since the previous emission. Only the interval timer
// is reset on emission; the elapsed-time timer keeps running so the rate
// stays a cumulative average.
func (m *progressMeter) Add(n int) {
	m.processed += uint64(n)

	if m.fn == nil {
		return
	}

	now := time.Now()
	if now.Sub(m.lastEmit) < m.interval {
		return
	}
	m.lastEmit = now
	m.emit(now)
}

// Finish emits a final snapshot so the last reported count equals the total
// bytes transferred, regardless of where the throttle window landed.
func (m *progressMeter) Finish() {
	if m.fn == nil {
		return
	}
	m.emit(time.Now())
}

func (m *progressMeter) emit(now time.Time) {
	elapsed := now.Sub(m.start).Seconds()

	var rate float64
	if elapsed > 0 {
		rate = float64(m.processed) / elapsed
	}

	m.fn(ProgressSnapshot{
		ProcessedBytes: m.processed,
		BytesPerSecond: rate,
	})
}
