// Package session runs one capture session: it owns the extractor set and
// the buffered writer, and turns each raw datagram into updated snapshot
// files.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry.report/internal/fsutil"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/telemetry/cipher"
	"github.com/banshee-data/telemetry.report/internal/telemetry/extract"
	"github.com/banshee-data/telemetry.report/internal/telemetry/packet"
	"github.com/banshee-data/telemetry.report/internal/telemetry/writer"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// ErrBadMagic is returned for frames that decrypted to the wrong identifier.
// It matches cipher.ErrMalformedPacket.
var ErrBadMagic = fmt.Errorf("%w: bad magic", cipher.ErrMalformedPacket)

// ErrClosed is returned by HandlePacket after Close.
var ErrClosed = errors.New("session closed")

// Catalog records sessions in a persistent index. *db.DB implements it.
type Catalog interface {
	StartSession(sessionID string, start time.Time, outputDir string) (runID string, err error)
	UpdateSession(runID string, carCode int32, totals telemetry.Totals) error
	EndSession(runID string, end time.Time, totals telemetry.Totals) error
}

// Config configures a Session.
type Config struct {
	// OutputRoot is the directory that receives one subdirectory per session.
	OutputRoot string
	FS         fsutil.FileSystem
	Clock      timeutil.Clock

	Cars      extract.CarTable
	Downforce extract.DownforceTable
	Options   extract.Options

	BufferSize     int
	RequireMagic   bool
	AsyncFlush     bool
	FlushQueueSize int

	Stats   *telemetry.PacketStats
	Catalog Catalog
}

// Summary describes a running session.
type Summary struct {
	SessionID    string    `json:"session_id"`
	RunID        string    `json:"run_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	OutputDir    string    `json:"output_dir"`
	LastPacketID int32     `json:"last_packet_id"`
	CarCode      int32     `json:"car_code"`
	Dropped      int64     `json:"dropped"`
	telemetry.Totals
}

// Session processes packets strictly one at a time, in arrival order.
type Session struct {
	cfg     Config
	ctx     extract.SessionContext
	runID   string
	stats   *telemetry.PacketStats
	files   *fsutil.AtomicWriter
	set     *extract.Set
	buf     *writer.BufferedWriter
	flusher *writer.AsyncFlusher
	logf    func(format string, v ...interface{})

	mu     sync.Mutex
	closed bool

	lastPacketID atomic.Int32
	carCode      atomic.Int32
	// retry is set by the async flusher when a batch fails to persist, so
	// the next packet offers a new batch instead of waiting a full cycle.
	retry atomic.Bool
}

// New starts a session at the current clock time and creates its output
// directory.
func New(cfg Config) (*Session, error) {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = telemetry.NewPacketStatsWithClock(cfg.Clock)
	}
	if cfg.Options.Clock == nil {
		cfg.Options.Clock = cfg.Clock
	}

	sc := extract.NewSessionContext(cfg.Clock.Now(), cfg.OutputRoot)
	if err := cfg.FS.MkdirAll(sc.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	files := fsutil.NewAtomicWriter(sc.OutputDir, cfg.FS)
	s := &Session{
		cfg:   cfg,
		ctx:   sc,
		stats: cfg.Stats,
		files: files,
		set:   extract.NewSet(sc, cfg.Cars, cfg.Downforce, cfg.Options),
		buf:   writer.NewBufferedWriter(files, cfg.BufferSize),
		logf:  monitoring.Prefixed("session " + sc.ID),
	}

	if cfg.AsyncFlush {
		s.flusher = writer.NewAsyncFlusher(files, cfg.FlushQueueSize)
		s.flusher.OnError = func(error) {
			s.stats.AddFlushError()
			s.retry.Store(true)
		}
		s.flusher.Start()
	}

	if cfg.Catalog != nil {
		runID, err := cfg.Catalog.StartSession(sc.ID, sc.StartTime, sc.OutputDir)
		if err != nil {
			s.logf("catalog start failed: %v", err)
		}
		s.runID = runID
	}

	s.logf("started, writing to %s", sc.OutputDir)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.ctx.ID }

// Dir returns the session output directory.
func (s *Session) Dir() string { return s.ctx.OutputDir }

// Files returns the persister used for the session directory.
func (s *Session) Files() *fsutil.AtomicWriter { return s.files }

// HandlePacket decrypts, decodes and extracts one datagram, then flushes the
// snapshots when due. Malformed packets are counted and returned as errors
// matching cipher.ErrMalformedPacket; persistence failures are counted and
// returned wrapped, and neither stops the session.
func (s *Session) HandlePacket(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.stats.AddPacket(len(raw))

	plain, err := cipher.Decrypt(raw)
	if err != nil {
		s.stats.AddMalformed()
		return err
	}
	frame, err := packet.Decode(plain)
	if err != nil {
		s.stats.AddMalformed()
		return err
	}
	if s.cfg.RequireMagic && !frame.HasMagic() {
		s.stats.AddMalformed()
		return fmt.Errorf("%w (%#08x)", ErrBadMagic, frame.Magic)
	}

	due := s.process(frame)
	s.stats.AddProcessed()
	if !due && !s.retry.Load() {
		return nil
	}
	return s.flush()
}

// process feeds f to every extractor and stores the snapshots. It reports
// whether the writer is due a flush.
func (s *Session) process(f *packet.Frame) bool {
	s.lastPacketID.Store(f.PacketID)
	s.carCode.Store(f.CarCode)

	snaps := s.set.Extract(f, s.cfg.Clock.Now())
	s.buf.Update(writer.Metadata, snaps.Metadata)
	s.buf.Update(writer.Suspension, snaps.Suspension)
	s.buf.Update(writer.Tires, snaps.Tires)
	s.buf.Update(writer.Aero, snaps.Aero)
	s.buf.Update(writer.Drivetrain, snaps.Drivetrain)
	return s.buf.Update(writer.Balance, snaps.Balance)
}

// flush persists the snapshots synchronously or hands them to the async
// flusher. A failed write leaves the writer counter in place so the next
// packet retries with fresher state.
func (s *Session) flush() error {
	if s.flusher != nil {
		retry := s.retry.Swap(false)
		if s.flusher.FlushFrom(s.buf) {
			s.stats.AddFlush()
			s.updateCatalog()
		} else if retry {
			s.retry.Store(true)
		}
		return nil
	}

	wrote, err := s.buf.Flush()
	if err != nil {
		s.stats.AddFlushError()
		return fmt.Errorf("session %s: %w", s.ctx.ID, err)
	}
	if wrote {
		s.stats.AddFlush()
		s.updateCatalog()
	}
	return nil
}

func (s *Session) updateCatalog() {
	if s.cfg.Catalog == nil || s.runID == "" {
		return
	}
	if err := s.cfg.Catalog.UpdateSession(s.runID, s.carCode.Load(), s.stats.Totals()); err != nil {
		s.logf("catalog update failed: %v", err)
	}
}

// Close writes the buffered snapshots one last time, drains the async
// flusher and records the session end. Further packets are rejected.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.flusher != nil {
		s.flusher.Close()
		if _, ferr := s.buf.Flush(); ferr != nil {
			s.stats.AddFlushError()
			err = fmt.Errorf("session %s: final write: %w", s.ctx.ID, ferr)
		}
	} else if ferr := s.buf.ForceWrite(); ferr != nil {
		s.stats.AddFlushError()
		err = fmt.Errorf("session %s: final write: %w", s.ctx.ID, ferr)
	}

	if s.cfg.Catalog != nil && s.runID != "" {
		totals := s.stats.Totals()
		if cerr := s.cfg.Catalog.UpdateSession(s.runID, s.carCode.Load(), totals); cerr != nil {
			s.logf("catalog update failed: %v", cerr)
		}
		if cerr := s.cfg.Catalog.EndSession(s.runID, s.cfg.Clock.Now(), totals); cerr != nil {
			s.logf("catalog end failed: %v", cerr)
		}
	}

	t := s.stats.Totals()
	s.logf("closed: %d packets received, %d processed, %d malformed, %d flushes",
		t.Received, t.Processed, t.Malformed, t.Flushes)
	return err
}

// Stats returns a summary of the session so far. It is safe to call from any
// goroutine.
func (s *Session) Stats() Summary {
	t := s.stats.Totals()
	return Summary{
		SessionID:    s.ctx.ID,
		RunID:        s.runID,
		StartTime:    s.ctx.StartTime,
		OutputDir:    s.ctx.OutputDir,
		LastPacketID: s.lastPacketID.Load(),
		CarCode:      s.carCode.Load(),
		Dropped:      t.Dropped(),
		Totals:       t,
	}
}

// ReadDomain returns the last persisted snapshot of the named domain, or an
// empty document when it has not been written yet.
func (s *Session) ReadDomain(name string) (map[string]any, error) {
	d, err := writer.ParseDomain(name)
	if err != nil {
		return nil, err
	}
	return s.files.ReadOrInit(d.Filename(), map[string]any{}), nil
}
