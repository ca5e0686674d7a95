package writer

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

// DefaultQueueSize is the number of batches the async flusher holds.
const DefaultQueueSize = 4

// AsyncFlusher moves snapshot file I/O off the packet path. Batches are
// value copies of the writer slots, so the next packet's extraction never
// races with a write in progress. A full queue drops the batch: the next
// flush carries fresher state anyway.
type AsyncFlusher struct {
	persist Persister
	queue   chan Batch
	done    chan struct{}

	closeOnce sync.Once

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	// OnError, if set before Start, is called from the flusher goroutine for
	// every failed write.
	OnError func(error)
}

// NewAsyncFlusher returns a flusher with the given queue depth. A
// non-positive size uses DefaultQueueSize.
func NewAsyncFlusher(persist Persister, queueSize int) *AsyncFlusher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &AsyncFlusher{
		persist: persist,
		queue:   make(chan Batch, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (f *AsyncFlusher) Start() {
	go func() {
		defer close(f.done)
		for batch := range f.queue {
			if err := f.persist.WriteAll(batch.Files()); err != nil {
				f.failed.Add(1)
				monitoring.Logf("writer: async flush failed: %v", err)
				if f.OnError != nil {
					f.OnError(err)
				}
				continue
			}
			f.written.Add(1)
		}
	}()
}

// Enqueue hands a batch to the writer goroutine without blocking. It
// reports false when the queue was full and the batch was dropped.
func (f *AsyncFlusher) Enqueue(b Batch) bool {
	select {
	case f.queue <- b:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// FlushFrom queues w's current slots and resets its counter. Nothing is
// queued until every domain is populated.
func (f *AsyncFlusher) FlushFrom(w *BufferedWriter) bool {
	batch, ready := w.Snapshot()
	if !ready {
		return false
	}
	if !f.Enqueue(batch) {
		return false
	}
	w.Reset()
	return true
}

// Close stops accepting batches and waits for queued ones to be written.
// Start must have been called, and Close must not run concurrently with
// Enqueue.
func (f *AsyncFlusher) Close() {
	f.closeOnce.Do(func() { close(f.queue) })
	<-f.done
}

// Written returns the number of batches persisted.
func (f *AsyncFlusher) Written() int64 { return f.written.Load() }

// Dropped returns the number of batches discarded on a full queue.
func (f *AsyncFlusher) Dropped() int64 { return f.dropped.Load() }

// Failed returns the number of batches whose write failed.
func (f *AsyncFlusher) Failed() int64 { return f.failed.Load() }
