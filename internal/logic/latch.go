package logic

import "time"

// Latch mirrors the output pin. The pin is the only state that survives a
// cycle, so the latch records what was last written and reports changes.
type Latch struct {
	variant       Variant
	level         Level
	known         bool
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewLatch creates a latch for the given variant.
// The startTime is used for calculating uptime in heartbeat events.
func NewLatch(variant Variant, startTime time.Time) *Latch {
	return &Latch{
		variant:       variant,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Apply records a write of level to the output pin. It returns an event
// only when the level differs from the previous write; the first write
// always counts as a transition because the pin state before it is unknown.
func (l *Latch) Apply(level Level, now time.Time, cycle int64, raw int, voltage float64) *Event {
	if l.known && l.level == level {
		return nil
	}
	l.known = true
	l.level = level

	e := &Event{
		Timestamp: now,
		Variant:   l.variant,
		Cycle:     cycle,
		Level:     level,
		Raw:       raw,
		Voltage:   voltage,
	}
	if level == High {
		e.Type = EventOutputHigh
		l.eventCounts.High++
	} else {
		e.Type = EventOutputLow
		l.eventCounts.Low++
	}
	return e
}

// CompleteCycle counts a finished cycle. triggered marks cycles where the
// input crossed its threshold.
func (l *Latch) CompleteCycle(triggered bool) {
	l.eventCounts.Cycles++
	if triggered {
		l.eventCounts.Triggers++
	}
}

// Level returns the last written level and whether anything was written yet.
func (l *Latch) Level() (Level, bool) {
	return l.level, l.known
}

// EventCountsSnapshot returns a copy of the counters.
func (l *Latch) EventCountsSnapshot() EventCounts {
	return l.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the output was never written,
// if the interval has not elapsed, or if interval is <= 0 (disabled).
func (l *Latch) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !l.known {
		return nil
	}

	if now.Sub(l.lastHeartbeat) < interval {
		return nil
	}

	l.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(l.startTime),
		Counts:    l.eventCounts,
	}
}
