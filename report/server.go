// Package report serves the verification history over HTTP and exports
// run summaries as Markdown.
//
// Routes:
//
//	GET /                          HTML summary (?run=<id>, default latest)
//	GET /report.md                 Markdown summary (?run=<id>)
//	GET /api/runs                  recent runs
//	GET /api/results               entries (?run, reference, outcome, failed, limit)
//	GET /api/results/{id}          one entry
//	GET /api/stats                 counts (?run)
//	GET /artifacts/{id}/{kind}     candidate | baseline | diff PNG
//	GET /healthz
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/designref/history"
)

// Source is the read side of the history store. *history.Store satisfies it.
type Source interface {
	List(ctx context.Context, f history.Filter) ([]*history.Entry, error)
	Get(ctx context.Context, id string) (*history.Entry, error)
	Stats(ctx context.Context, runID string) (*history.Stats, error)
	Runs(ctx context.Context, limit int) ([]*history.Run, error)
}

// Config configures the report server.
type Config struct {
	// User and PasswordHash (bcrypt) enable HTTP Basic Auth on every route
	// except /healthz. Both empty = no auth.
	User         string
	PasswordHash string

	// ArtifactRoots confines /artifacts to files below these directories,
	// typically the baseline root and the temporary screenshots root.
	ArtifactRoots []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the report HTTP server.
type Server struct {
	src    Source
	cfg    Config
	router chi.Router
}

// New builds the router.
func New(src Source, cfg Config) *Server {
	cfg.defaults()
	s := &Server{src: src, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(securityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.User != "" {
			r.Use(basicAuth(cfg.User, cfg.PasswordHash, cfg.Logger))
		}
		r.Get("/", s.handleIndex)
		r.Get("/report.md", s.handleMarkdown)
		r.Get("/api/runs", s.handleRuns)
		r.Get("/api/results", s.handleResults)
		r.Get("/api/results/{id}", s.handleResult)
		r.Get("/api/stats", s.handleStats)
		r.Get("/artifacts/{id}/{kind}", s.handleArtifact)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("report: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("report: serve: %w", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := buildSummary(r.Context(), s.src, r.URL.Query().Get("run"), serverLinks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, sum); err != nil {
		s.cfg.Logger.Warn("report: render index", "error", err)
	}
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := Markdown(r.Context(), s.src, r.URL.Query().Get("run"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.src.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	failed, _ := strconv.ParseBool(q.Get("failed"))
	entries, err := s.src.List(r.Context(), history.Filter{
		RunID:     q.Get("run"),
		Reference: q.Get("reference"),
		Outcome:   q.Get("outcome"),
		Failed:    failed,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	e, err := s.src.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.src.Stats(r.Context(), r.URL.Query().Get("run"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
