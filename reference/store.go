// Package reference locates approved design reference images.
//
// Baselines live at <root>/<dir>/<browser>/<name> so each browser keeps its
// own set. The program never writes a baseline: approving one is a manual
// copy printed by the diagnostics reporter.
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is the baseline directory under the repository root.
const DefaultDir = "design_reference"

// ErrInvalidName is returned for reference names that would resolve outside
// the browser's baseline directory.
var ErrInvalidName = errors.New("reference: invalid name")

// Store resolves logical reference names for one browser.
type Store struct {
	root    string
	browser string
}

// New returns a Store rooted at <root>/<dir>/<browser>. An empty dir means
// DefaultDir.
func New(root, dir, browser string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{root: filepath.Join(root, dir), browser: browser}
}

// Browser returns the browser identity the store is keyed by.
func (s *Store) Browser() string { return s.browser }

// Path returns the baseline path for name without touching the filesystem.
func (s *Store) Path(name string) (string, error) {
	base := filepath.Join(s.root, s.browser)
	if name == "" || filepath.IsAbs(name) || hasParentSegment(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(base, filepath.Clean("/"+name))
	if !strings.HasPrefix(p, filepath.Clean(base)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}

// hasParentSegment reports whether any element of name is "..", splitting on
// both slash and backslash.
func hasParentSegment(name string) bool {
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Resolve returns the baseline path for name and whether it exists. When it
// does not, the parent directory is created so the baseline can be dropped
// in by hand.
func (s *Store) Resolve(name string) (string, bool, error) {
	p, err := s.Path(name)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(p)
	switch {
	case err == nil:
		if info.IsDir() {
			return "", false, fmt.Errorf("reference: %s is a directory", p)
		}
		return p, true, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", false, fmt.Errorf("reference: mkdir: %w", err)
		}
		return p, false, nil
	default:
		return "", false, fmt.Errorf("reference: stat %s: %w", p, err)
	}
}
