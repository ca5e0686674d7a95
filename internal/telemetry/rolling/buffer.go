// Package rolling keeps a bounded history of one telemetry channel and
// summarises it on demand.
package rolling

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the number of samples kept per channel. Larger windows
// smooth more but react more slowly; it is tunable through window_size.
const DefaultCapacity = 10

// Stats summarises the samples currently held by a Buffer.
type Stats struct {
	Current float64   `json:"current"`
	Avg     float64   `json:"avg"`
	Max     float64   `json:"max"`
	Min     float64   `json:"min"`
	Samples []float64 `json:"samples"`
}

// Buffer is a fixed-capacity FIFO of float64 samples backed by a ring.
// It is not safe for concurrent use; each extractor owns its buffers.
type Buffer struct {
	ring  []float64
	head  int // index of the oldest sample
	count int
}

// New returns a Buffer holding at most capacity samples. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]float64, capacity)}
}

// Add appends v, evicting the oldest sample once the buffer is full.
func (b *Buffer) Add(v float64) {
	if b.count < len(b.ring) {
		b.ring[(b.head+b.count)%len(b.ring)] = v
		b.count++
		return
	}
	b.ring[b.head] = v
	b.head = (b.head + 1) % len(b.ring)
}

// Len returns the number of samples held.
func (b *Buffer) Len() int { return b.count }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.ring) }

// Samples returns the held samples, oldest first. The result is a copy and is
// never nil.
func (b *Buffer) Samples() []float64 {
	out := make([]float64, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

// Stats computes current/avg/min/max over the held samples. An empty buffer
// yields an all-zero Stats with an empty sample list.
func (b *Buffer) Stats() Stats {
	samples := b.Samples()
	if len(samples) == 0 {
		return Stats{Samples: samples}
	}
	return Stats{
		Current: samples[len(samples)-1],
		Avg:     stat.Mean(samples, nil),
		Max:     floats.Max(samples),
		Min:     floats.Min(samples),
		Samples: samples,
	}
}
