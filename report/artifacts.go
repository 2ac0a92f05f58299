package report

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/designref/history"
	"github.com/hazyhaar/designref/verify"
)

// artifactPath returns the recorded path of kind, "" when absent.
func artifactPath(e *history.Entry, kind string) string {
	switch kind {
	case "candidate":
		return e.Candidate
	case "baseline":
		if e.Outcome == verify.NoBaseline {
			return ""
		}
		return e.Baseline
	case "diff":
		return e.Diff
	}
	return ""
}

// confined reports whether p lies below one of roots.
func confined(roots []string, p string) bool {
	p = filepath.Clean(p)
	if !filepath.IsAbs(p) {
		return false
	}
	for _, root := range roots {
		rel, err := filepath.Rel(filepath.Clean(root), p)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "." {
			return true
		}
	}
	return false
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "candidate", "baseline", "diff":
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown artifact kind %q", kind))
		return
	}

	e, err := s.src.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	p := artifactPath(e, kind)
	if p == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no %s for %s", kind, e.ID))
		return
	}
	if !confined(s.cfg.ArtifactRoots, p) {
		s.cfg.Logger.Warn("report: artifact outside roots", "id", e.ID, "kind", kind, "path", p)
		writeError(w, http.StatusForbidden, fmt.Errorf("artifact outside served roots"))
		return
	}

	f, err := os.Open(p)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s no longer on disk", kind))
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		writeError(w, http.StatusNotFound, fmt.Errorf("%s is not a file", kind))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, filepath.Base(p), fi.ModTime(), f)
}
