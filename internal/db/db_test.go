package db

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var synchronous int
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 1, synchronous, "NORMAL")

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore, "MEMORY")
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(MigrationsFS(), ".")
	require.NoError(t, err)
	assert.Len(t, entries, 4, "two up/down pairs")

	db := newTestDB(t)
	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	assert.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown(MigrationsFS()))

	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateUp(MigrationsFS()))
	version, _, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestOpenDB_NoSchema(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 5, 2, 18, 4, 5, 0, time.UTC))
	db.SetClock(clock)

	start := clock.Now()
	runID, err := db.StartSession("20260502_180405", start, "sessions/20260502_180405")
	require.NoError(t, err)
	require.Len(t, runID, 36)

	rec, err := db.GetSession(runID)
	require.NoError(t, err)
	assert.Equal(t, "20260502_180405", rec.SessionID)
	assert.True(t, rec.StartTime.Equal(start))
	assert.True(t, rec.Active())
	assert.Equal(t, telemetry.Totals{}, rec.Totals)

	totals := telemetry.Totals{Received: 120, Bytes: 120 * 296, Processed: 118, Malformed: 2, Flushes: 2}
	require.NoError(t, db.UpdateSession(runID, 1004, totals))

	rec, err = db.GetSession(runID)
	require.NoError(t, err)
	assert.Equal(t, int32(1004), rec.CarCode)
	assert.Equal(t, totals, rec.Totals)

	clock.Advance(time.Minute)
	totals.Flushes = 3
	require.NoError(t, db.EndSession(runID, clock.Now(), totals))

	rec, err = db.GetSession(runID)
	require.NoError(t, err)
	require.NotNil(t, rec.EndedAt)
	assert.True(t, rec.EndedAt.Equal(start.Add(time.Minute)))
	assert.False(t, rec.Active())
	assert.Equal(t, int64(3), rec.Flushes)
}

func TestSessionNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, db.UpdateSession("missing", 1, telemetry.Totals{}), ErrSessionNotFound)
	assert.ErrorIs(t, db.EndSession("missing", time.Now(), telemetry.Totals{}), ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		id, err := db.StartSession(start.Format("20060102_150405"), start, "sessions")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].RunID, "newest first")
	assert.Equal(t, ids[0], all[2].RunID)

	limited, err := db.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	empty := newTestDB(t)
	none, err := empty.ListSessions(10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSameSecondSessionsGetDistinctRuns(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 5, 2, 18, 4, 5, 0, time.UTC)

	a, err := db.StartSession("20260502_180405", start, "sessions/20260502_180405")
	require.NoError(t, err)
	b, err := db.StartSession("20260502_180405", start, "sessions/20260502_180405")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCloseAbandoned(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC))
	db.SetClock(clock)

	open, err := db.StartSession("a", clock.Now().Add(-time.Hour), "sessions/a")
	require.NoError(t, err)
	done, err := db.StartSession("b", clock.Now().Add(-2*time.Hour), "sessions/b")
	require.NoError(t, err)
	require.NoError(t, db.EndSession(done, clock.Now().Add(-90*time.Minute), telemetry.Totals{}))

	n, err := db.CloseAbandoned()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := db.GetSession(open)
	require.NoError(t, err)
	require.NotNil(t, rec.EndedAt)
	assert.True(t, rec.EndedAt.Equal(clock.Now()))
}

func TestClosedDBErrors(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	db.Close()

	_, err = db.StartSession("x", time.Now(), "sessions/x")
	assert.Error(t, err)
	assert.Error(t, db.MigrateUp(MigrationsFS()))
}

func TestGetDatabaseStats(t *testing.T) {
	db := newTestDB(t)
	_, err := db.StartSession("x", time.Now(), "sessions/x")
	require.NoError(t, err)

	stats, err := db.GetDatabaseStats()
	require.NoError(t, err)
	assert.Greater(t, stats.TotalSizeMB, 0.0)

	var sessions *TableStats
	for i := range stats.Tables {
		if stats.Tables[i].Name == "sessions" {
			sessions = &stats.Tables[i]
		}
	}
	require.NotNil(t, sessions)
	assert.Equal(t, int64(1), sessions.RowCount)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	for _, path := range []string{"/debug/db-stats", "/debug/backup", "/debug/tailsql/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			// Debug routes may refuse non-local callers; they must exist.
			if w.Code == http.StatusNotFound {
				t.Errorf("route %s should be registered, got 404", path)
			}
			if w.Code == http.StatusInternalServerError {
				t.Errorf("route %s returned 500: %s", path, w.Body.String())
			}
			if path == "/debug/db-stats" && w.Code == http.StatusOK {
				var stats DatabaseStats
				if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
					t.Errorf("Failed to parse db-stats response: %v", err)
				}
			}
		})
	}
}

func TestMigrateUp_BadSource(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, db.MigrateUp(emptyFS{}))
}

// emptyFS has no migration files.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
