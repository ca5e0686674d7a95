package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// ErrSessionNotFound is returned for unknown run IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is one catalog row. A session ID names the output folder and
// is only unique to the second, so rows are keyed by a random run ID.
type SessionRecord struct {
	RunID     string     `json:"run_id"`
	SessionID string     `json:"session_id"`
	StartTime time.Time  `json:"start_time"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	OutputDir string     `json:"output_dir"`
	CarCode   int32      `json:"car_code"`
	telemetry.Totals
}

// Active reports whether the session has not been ended.
func (r SessionRecord) Active() bool { return r.EndedAt == nil }

// StartSession records a new session and returns its run ID.
func (db *DB) StartSession(sessionID string, start time.Time, outputDir string) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (run_id, session_id, start_time, output_dir) VALUES (?, ?, ?, ?)`,
		runID, sessionID, start.UnixNano(), outputDir,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session %s: %w", sessionID, err)
	}
	return runID, nil
}

// UpdateSession stores the latest car and counters for a running session.
func (db *DB) UpdateSession(runID string, carCode int32, totals telemetry.Totals) error {
	res, err := db.Exec(
		`UPDATE sessions SET car_code = ?, packets = ?, bytes = ?, processed = ?, dropped = ?,
			forward_dropped = ?, flushes = ?, flush_errors = ?, updated_at = ?
		WHERE run_id = ?`,
		carCode, totals.Received, totals.Bytes, totals.Processed, totals.Malformed,
		totals.ForwardDropped, totals.Flushes, totals.FlushErrors, db.clock.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", runID, err)
	}
	return requireOneRow(res, runID)
}

// EndSession marks the session finished with its final counters.
func (db *DB) EndSession(runID string, end time.Time, totals telemetry.Totals) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ?, packets = ?, bytes = ?, processed = ?, dropped = ?,
			forward_dropped = ?, flushes = ?, flush_errors = ?, updated_at = ?
		WHERE run_id = ?`,
		end.UnixNano(), totals.Received, totals.Bytes, totals.Processed, totals.Malformed,
		totals.ForwardDropped, totals.Flushes, totals.FlushErrors, db.clock.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", runID, err)
	}
	return requireOneRow(res, runID)
}

func requireOneRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, runID)
	}
	return nil
}

const sessionColumns = `run_id, session_id, start_time, ended_at, output_dir, car_code,
	packets, bytes, processed, dropped, forward_dropped, flushes, flush_errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		r       SessionRecord
		start   int64
		ended   sql.NullInt64
		carCode int64
	)
	err := row.Scan(&r.RunID, &r.SessionID, &start, &ended, &r.OutputDir, &carCode,
		&r.Received, &r.Bytes, &r.Processed, &r.Malformed, &r.ForwardDropped, &r.Flushes, &r.FlushErrors)
	if err != nil {
		return SessionRecord{}, err
	}
	r.StartTime = time.Unix(0, start).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		r.EndedAt = &t
	}
	r.CarCode = int32(carCode)
	return r, nil
}

// GetSession returns one session by run ID.
func (db *DB) GetSession(runID string) (SessionRecord, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE run_id = ?`, runID)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%w: %s", ErrSessionNotFound, runID)
	}
	return r, err
}

// ListSessions returns up to limit sessions, newest first. A non-positive
// limit returns 100.
func (db *DB) ListSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []SessionRecord{}
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CloseAbandoned ends sessions left open by an earlier process, e.g. after a
// crash, at the current clock time. It returns the number of rows closed.
func (db *DB) CloseAbandoned() (int64, error) {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL`, db.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to close abandoned sessions: %w", err)
	}
	return res.RowsAffected()
}
