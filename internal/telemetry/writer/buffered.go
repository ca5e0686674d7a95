package writer

import (
	"fmt"

	"github.com/banshee-data/telemetry.report/internal/fsutil"
)

// DefaultBufferSize is the number of update cycles between flushes. A cycle
// is one update of every domain, normally one packet.
const DefaultBufferSize = 10

// Batch is one complete set of snapshots ready to be written.
type Batch [numDomains]any

// Files maps each snapshot to its filename.
func (b Batch) Files() map[string]any {
	files := make(map[string]any, numDomains)
	for d, snap := range b {
		files[Domain(d).Filename()] = snap
	}
	return files
}

// Persister writes a full set of snapshot files. fsutil.AtomicWriter
// satisfies it.
type Persister interface {
	WriteAll(docs map[string]any) error
}

// BufferedWriter keeps the latest snapshot of each domain and signals when
// enough updates have accumulated to be worth writing. Slots survive a
// flush so a domain that stops updating keeps its last value on disk.
//
// It is owned by the single packet-processing path and does not lock.
type BufferedWriter struct {
	persist   Persister
	threshold int

	slots [numDomains]any
	count int
}

// NewBufferedWriter returns a writer that flushes through persist every
// bufferSize update cycles. A non-positive bufferSize uses
// DefaultBufferSize.
func NewBufferedWriter(persist Persister, bufferSize int) *BufferedWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &BufferedWriter{
		persist:   persist,
		threshold: bufferSize * int(numDomains),
	}
}

// NewSessionWriter is a convenience constructor persisting into dir through
// an AtomicWriter.
func NewSessionWriter(dir string, fsys fsutil.FileSystem, bufferSize int) *BufferedWriter {
	return NewBufferedWriter(fsutil.NewAtomicWriter(dir, fsys), bufferSize)
}

// Update stores snap as the latest value of d and reports whether the
// writer should now be flushed.
func (w *BufferedWriter) Update(d Domain, snap any) bool {
	if d < 0 || d >= numDomains {
		return false
	}
	w.slots[d] = snap
	w.count++
	return w.count >= w.threshold
}

// Ready reports whether every domain has produced at least one snapshot.
func (w *BufferedWriter) Ready() bool {
	for _, s := range w.slots {
		if s == nil {
			return false
		}
	}
	return true
}

// Count returns the number of updates since the last successful flush.
func (w *BufferedWriter) Count() int { return w.count }

// Pending returns a copy of the populated slots.
func (w *BufferedWriter) Pending() map[Domain]any {
	out := make(map[Domain]any, numDomains)
	for d, s := range w.slots {
		if s != nil {
			out[Domain(d)] = s
		}
	}
	return out
}

// Snapshot returns the current slots by value, and false when any domain
// is still empty.
func (w *BufferedWriter) Snapshot() (Batch, bool) {
	return Batch(w.slots), w.Ready()
}

// Reset zeroes the update counter after the current slots were persisted
// elsewhere, as the async flusher does.
func (w *BufferedWriter) Reset() { w.count = 0 }

// Flush writes all six files when every domain is populated and resets the
// counter on success. It reports whether files were written. On error the
// counter is kept, so the next flush carries the accumulated state.
func (w *BufferedWriter) Flush() (bool, error) {
	batch, ready := w.Snapshot()
	if !ready {
		return false, nil
	}
	if err := w.persist.WriteAll(batch.Files()); err != nil {
		return false, fmt.Errorf("flush snapshots: %w", err)
	}
	w.count = 0
	return true, nil
}

// ForceWrite flushes regardless of the counter, for session teardown. It is
// still a no-op until every domain has been populated.
func (w *BufferedWriter) ForceWrite() error {
	_, err := w.Flush()
	return err
}
