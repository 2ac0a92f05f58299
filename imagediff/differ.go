// Package imagediff measures how different a freshly captured screenshot is
// from its design reference.
//
// The metric is the mean absolute error as reported by ImageMagick's
// `compare -metric mae`: the normalised value in parentheses, where 0 means
// identical and 1 means every channel of every pixel is maximally different.
// Two engines produce it: Magick shells out to ImageMagick, Native computes
// the same quantity in-process when the binary is not installed.
package imagediff

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Score is a dissimilarity measure, always >= 0.
type Score float64

// MaxScore is reported when the engine output cannot be interpreted or the
// images cannot be compared at all (different dimensions). It is far above
// any pass threshold so the comparison never silently passes.
const MaxScore Score = 100

// Differ compares a candidate image against a baseline. diffOut is where a
// visual diff may be written; callers must not assume it exists afterwards.
// A returned error is a fault (unreadable file, missing tool), never a
// "the images differ" signal.
type Differ interface {
	Compare(ctx context.Context, candidate, baseline, diffOut string) (Score, error)
}

// Engine names accepted by New.
const (
	EngineAuto   = "auto"
	EngineMagick = "magick"
	EngineNative = "native"
)

// New returns the Differ for engine. EngineAuto picks Magick when the
// `compare` binary is on PATH and Native otherwise.
func New(engine string, logger *slog.Logger) (Differ, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch engine {
	case EngineMagick:
		return &Magick{Logger: logger}, nil
	case EngineNative:
		return &Native{}, nil
	case EngineAuto, "":
		if _, err := exec.LookPath(defaultCompareBin); err == nil {
			return &Magick{Logger: logger}, nil
		}
		logger.Info("imagediff: compare binary not found, using native engine")
		return &Native{}, nil
	default:
		return nil, fmt.Errorf("imagediff: unknown engine %q", engine)
	}
}
