// Package api serves the read-only status endpoints: the session catalog,
// the live session summary, its latest domain snapshots and those left by
// earlier sessions.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/httputil"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/security"
	"github.com/banshee-data/telemetry.report/internal/telemetry/session"
	"github.com/banshee-data/telemetry.report/internal/telemetry/writer"
	"github.com/banshee-data/telemetry.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SessionLister lists catalog entries. *db.DB implements it.
type SessionLister interface {
	ListSessions(limit int) ([]db.SessionRecord, error)
}

// LiveSession is the running capture session. *session.Session implements it.
type LiveSession interface {
	Stats() session.Summary
	ReadDomain(name string) (map[string]any, error)
}

// Server exposes the status API. Either dependency may be nil, in which
// case its endpoints answer 404.
type Server struct {
	catalog     SessionLister
	live        LiveSession
	config      any
	archiveRoot string
}

// NewServer returns a server over the catalog and the live session. config,
// if non-nil, is served as-is from /api/config.
func NewServer(catalog SessionLister, live LiveSession, config any) *Server {
	return &Server{catalog: catalog, live: live, config: config}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// SetArchiveRoot enables /api/sessions/{id}/{domain}, which serves the last
// snapshots written by any session under root.
func (s *Server) SetArchiveRoot(root string) {
	s.archiveRoot = root
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}/{domain}", s.showArchivedDomain)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/session/{domain}", s.showDomain)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.catalog == nil {
		httputil.NotFound(w, "session catalog is disabled")
		return
	}

	limit, err := httputil.QueryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.catalog.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.live == nil {
		httputil.NotFound(w, "no active session")
		return
	}
	httputil.WriteJSONOK(w, s.live.Stats())
}

func (s *Server) showDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.live == nil {
		httputil.NotFound(w, "no active session")
		return
	}

	name := r.PathValue("domain")
	doc, err := s.live.ReadDomain(name)
	switch {
	case errors.Is(err, writer.ErrUnknownDomain):
		httputil.NotFound(w, fmt.Sprintf("unknown domain %q", name))
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("Failed to read %s: %v", name, err))
	default:
		httputil.WriteJSONOK(w, doc)
	}
}

func (s *Server) showArchivedDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.archiveRoot == "" {
		httputil.NotFound(w, "session archive is disabled")
		return
	}

	d, err := writer.ParseDomain(r.PathValue("domain"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	id := r.PathValue("id")
	path := filepath.Join(s.archiveRoot, id, d.Filename())
	if err := security.ValidatePathWithinDirectory(path, s.archiveRoot); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid session id %q", id))
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		httputil.NotFound(w, fmt.Sprintf("no %s snapshot for session %q", d, id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to read %s: %v", d, err))
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Corrupt %s snapshot: %v", d, err))
		return
	}
	httputil.WriteJSONOK(w, doc)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.config == nil {
		httputil.NotFound(w, "no configuration")
		return
	}
	httputil.WriteJSONOK(w, s.config)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
