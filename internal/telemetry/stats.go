// Package telemetry holds types shared by the ingest pipeline packages.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// Totals is a point-in-time copy of the session counters.
type Totals struct {
	Received       int64 `json:"received"`
	Bytes          int64 `json:"bytes"`
	Processed      int64 `json:"processed"`
	Malformed      int64 `json:"malformed"`
	ForwardDropped int64 `json:"forward_dropped"`
	Flushes        int64 `json:"flushes"`
	FlushErrors    int64 `json:"flush_errors"`
}

// Dropped is the number of received packets that were not processed.
func (t Totals) Dropped() int64 { return t.Malformed }

// PacketStats tracks packet statistics with thread-safe operations. It keeps
// lifetime totals plus an interval window that LogStats reports and resets.
type PacketStats struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	total     Totals
	window    Totals
	lastReset time.Time
}

// NewPacketStats creates a new PacketStats using the real clock.
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats timed by clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	return &PacketStats{clock: clock, lastReset: clock.Now()}
}

func (ps *PacketStats) add(f func(t *Totals)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	f(&ps.total)
	f(&ps.window)
}

// AddPacket counts a received datagram of the given size.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.add(func(t *Totals) { t.Received++; t.Bytes += int64(bytes) })
}

// AddProcessed counts a packet that reached the extractors.
func (ps *PacketStats) AddProcessed() { ps.add(func(t *Totals) { t.Processed++ }) }

// AddMalformed counts a packet dropped for length or magic.
func (ps *PacketStats) AddMalformed() { ps.add(func(t *Totals) { t.Malformed++ }) }

// AddDropped counts a datagram the forwarder could not queue.
func (ps *PacketStats) AddDropped() { ps.add(func(t *Totals) { t.ForwardDropped++ }) }

// AddFlush counts a successful snapshot flush.
func (ps *PacketStats) AddFlush() { ps.add(func(t *Totals) { t.Flushes++ }) }

// AddFlushError counts a failed snapshot flush.
func (ps *PacketStats) AddFlushError() { ps.add(func(t *Totals) { t.FlushErrors++ }) }

// Totals returns the lifetime counters.
func (ps *PacketStats) Totals() Totals {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.total
}

// GetAndReset returns the interval counters and their duration, then starts
// a new interval.
func (ps *PacketStats) GetAndReset() (Totals, time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	window, d := ps.window, now.Sub(ps.lastReset)
	ps.window = Totals{}
	ps.lastReset = now
	return window, d
}

// LogStats logs per-second rates for the interval since the last call. Quiet
// intervals are not logged.
func (ps *PacketStats) LogStats() {
	w, d := ps.GetAndReset()
	if w.Received == 0 && w.ForwardDropped == 0 {
		return
	}
	secs := d.Seconds()
	if secs <= 0 {
		secs = 1
	}

	msg := fmt.Sprintf("Telemetry stats (/sec): %.1f packets, %.1f KB, %.1f processed",
		float64(w.Received)/secs, float64(w.Bytes)/secs/1024, float64(w.Processed)/secs)
	if w.Malformed > 0 {
		msg += fmt.Sprintf(", %d malformed", w.Malformed)
	}
	if w.Flushes > 0 || w.FlushErrors > 0 {
		msg += fmt.Sprintf(", %d flushes (%d failed)", w.Flushes, w.FlushErrors)
	}
	if w.ForwardDropped > 0 {
		msg += fmt.Sprintf(", %d dropped on forward", w.ForwardDropped)
	}
	monitoring.Logf("%s", msg)
}
