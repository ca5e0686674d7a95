package writer

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/fsutil"
)

const sessionDir = "/sessions/20260101_120000"

func newMemSessionWriter(t *testing.T, bufferSize int) (*BufferedWriter, *fsutil.MemoryFileSystem) {
	t.Helper()
	m := fsutil.NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll(sessionDir, 0755))
	return NewSessionWriter(sessionDir, m, bufferSize), m
}

var allFiles = []string{
	"aero.json", "balance.json", "drivetrain.json",
	"metadata.json", "suspension.json", "tires.json",
}

func TestDomainNames(t *testing.T) {
	want := []string{"metadata", "suspension", "tires", "aero", "drivetrain", "balance"}
	for i, d := range Domains() {
		assert.Equal(t, want[i], d.Name())
		assert.Equal(t, want[i]+".json", d.Filename())

		parsed, err := ParseDomain(want[i])
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := ParseDomain("engine")
	assert.ErrorIs(t, err, ErrUnknownDomain)
	assert.Equal(t, "domain(42)", Domain(42).Name())
}

func TestBufferedWriter_FlushCadence(t *testing.T) {
	const n = 3
	w, m := newMemSessionWriter(t, n)

	for round := 1; round <= n; round++ {
		for i, d := range Domains() {
			should := w.Update(d, map[string]int{"round": round})
			last := round == n && i == len(Domains())-1
			assert.Equal(t, last, should, "round %d domain %s", round, d)
		}
	}

	wrote, err := w.Flush()
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, allFiles, m.Files(sessionDir))
}

func TestBufferedWriter_NoPartialFlush(t *testing.T) {
	w, m := newMemSessionWriter(t, 1)

	for _, d := range Domains()[:5] {
		w.Update(d, map[string]string{"d": d.Name()})
	}
	assert.False(t, w.Ready())

	wrote, err := w.Flush()
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Empty(t, m.Files(sessionDir))
	assert.Equal(t, 5, w.Count(), "counter only resets after a write")

	require.NoError(t, w.ForceWrite())
	assert.Empty(t, m.Files(sessionDir))

	w.Update(Balance, map[string]string{"d": "balance"})
	require.NoError(t, w.ForceWrite())
	assert.Equal(t, allFiles, m.Files(sessionDir))
}

func TestBufferedWriter_SlotsSurviveFlush(t *testing.T) {
	w, m := newMemSessionWriter(t, 1)
	for _, d := range Domains() {
		w.Update(d, map[string]int{"v": 1})
	}
	_, err := w.Flush()
	require.NoError(t, err)

	w.Update(Tires, map[string]int{"v": 2})
	require.NoError(t, w.ForceWrite())

	reader := fsutil.NewAtomicWriter(sessionDir, m)
	assert.Equal(t, map[string]any{"v": 2.0}, reader.ReadOrInit("tires.json", nil))
	assert.Equal(t, map[string]any{"v": 1.0}, reader.ReadOrInit("aero.json", nil))
	assert.Len(t, w.Pending(), 6)
}

func TestBufferedWriter_FailedFlushKeepsCounter(t *testing.T) {
	w, m := newMemSessionWriter(t, 1)
	for _, d := range Domains() {
		w.Update(d, map[string]int{"v": 1})
	}

	m.FailRename(errors.New("disk full"))
	wrote, err := w.Flush()
	require.Error(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 6, w.Count())
	assert.Empty(t, m.Files(sessionDir))

	m.FailRename(nil)
	wrote, err = w.Flush()
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 0, w.Count())
}

func TestBufferedWriter_PendingIsCopy(t *testing.T) {
	w, _ := newMemSessionWriter(t, 0)
	w.Update(Aero, "a")
	p := w.Pending()
	delete(p, Aero)
	assert.Len(t, w.Pending(), 1)
	assert.False(t, w.Update(Domain(-1), "x"))
}

type recordingPersister struct {
	mu      sync.Mutex
	batches []map[string]any
	block   chan struct{}
	err     error
}

func (p *recordingPersister) WriteAll(docs map[string]any) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, docs)
	return p.err
}

func fullWriter(p Persister, v int) *BufferedWriter {
	w := NewBufferedWriter(p, 1)
	for _, d := range Domains() {
		w.Update(d, v)
	}
	return w
}

func TestAsyncFlusher_WritesAndResets(t *testing.T) {
	p := &recordingPersister{}
	f := NewAsyncFlusher(p, 2)
	f.Start()

	w := fullWriter(p, 1)
	assert.True(t, f.FlushFrom(w))
	assert.Equal(t, 0, w.Count())

	f.Close()
	assert.Equal(t, int64(1), f.Written())
	require.Len(t, p.batches, 1)
	assert.Equal(t, 1, p.batches[0]["metadata.json"])
}

func TestAsyncFlusher_BatchIsCopy(t *testing.T) {
	p := &recordingPersister{block: make(chan struct{})}
	f := NewAsyncFlusher(p, 2)
	f.Start()

	w := fullWriter(p, 1)
	require.True(t, f.FlushFrom(w))
	w.Update(Metadata, 2)

	close(p.block)
	f.Close()
	assert.Equal(t, 1, p.batches[0]["metadata.json"])
}

func TestAsyncFlusher_DropsWhenFull(t *testing.T) {
	p := &recordingPersister{block: make(chan struct{})}
	f := NewAsyncFlusher(p, 1)
	f.Start()

	w := fullWriter(p, 1)
	// The goroutine may already hold the first batch, so fill until a drop.
	for i := 0; i < 3 && f.Dropped() == 0; i++ {
		f.FlushFrom(w)
		w.Update(Metadata, 1)
	}
	assert.Equal(t, int64(1), f.Dropped())
	assert.NotZero(t, w.Count(), "a dropped batch keeps the counter")

	close(p.block)
	f.Close()
}

func TestAsyncFlusher_NotReady(t *testing.T) {
	p := &recordingPersister{}
	f := NewAsyncFlusher(p, 0)
	f.Start()

	w := NewBufferedWriter(p, 1)
	w.Update(Tires, 1)
	assert.False(t, f.FlushFrom(w))

	f.Close()
	assert.Empty(t, p.batches)
}

func TestAsyncFlusher_CountsFailures(t *testing.T) {
	p := &recordingPersister{err: errors.New("permission denied")}
	f := NewAsyncFlusher(p, 1)
	var got []error
	f.OnError = func(err error) { got = append(got, err) }
	f.Start()

	f.Enqueue(Batch{})
	f.Close()
	assert.Equal(t, int64(1), f.Failed())
	assert.Equal(t, int64(0), f.Written())
	assert.Len(t, got, 1)
}
