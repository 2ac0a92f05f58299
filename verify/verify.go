// Package verify decides whether a UI region still matches its design
// reference.
//
// A verification captures the region, looks up the reference for the
// current browser and scores the difference. Scores are read against two
// bands that use different units:
//
//	score <= PassBand          matched, noise-level difference
//	score <= PassBand * 100    tolerated, passes with a warning
//	otherwise                  re-capture after RetryDelay, up to MaxRetries
//
// The second band keeps its percentage scale against a fractional score.
// Both bands must stay distinct; existing baselines were approved under them.
//
// Only visual mismatches are retried. Capture, filesystem and differ faults
// end the call with an error.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/designref/capture"
	"github.com/hazyhaar/designref/diagnostics"
	"github.com/hazyhaar/designref/imagediff"
)

const (
	DefaultPassBand   = 0.0017
	DefaultMaxRetries = 5
	DefaultRetryDelay = time.Second
	DefaultTempRoot   = "/tmp"

	// ScreenshotsDir is created under the temp root; every attempt gets its
	// own random subdirectory inside it.
	ScreenshotsDir = "screenshots"
)

// Capturer writes a cropped capture of region to dst.
type Capturer interface {
	Capture(ctx context.Context, region capture.Region, dst string) error
}

// Baselines resolves reference names for the current browser.
type Baselines interface {
	Path(name string) (string, error)
	Resolve(name string) (path string, exists bool, err error)
	Browser() string
}

// Reporter prints operator diagnostics.
type Reporter interface {
	Mismatch(m diagnostics.Mismatch, sev diagnostics.Severity)
	NewBaseline(n diagnostics.NewBaseline)
}

// Recorder persists finished verifications. Record errors are logged and
// never change the verdict.
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

// Config tunes the retry and threshold policy.
type Config struct {
	// PassBand is the noise threshold. Default: 0.0017.
	PassBand float64
	// MaxRetries is the number of re-captures after the first attempt.
	// Default: 5 (6 attempts).
	MaxRetries int
	// RetryDelay is the pause before each re-capture. Default: 1s.
	RetryDelay time.Duration
	// TempRoot holds the screenshots directory. Default: /tmp.
	TempRoot string

	Logger *slog.Logger

	// Sleep waits between attempts. Default: time.Sleep. The wait is not
	// cancellable; a verification always reaches a verdict or a fault.
	Sleep func(time.Duration)
}

func (c *Config) defaults() {
	if c.PassBand <= 0 {
		c.PassBand = DefaultPassBand
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.TempRoot == "" {
		c.TempRoot = DefaultTempRoot
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
}

// ToleranceBand returns the upper bound of the tolerated band.
func (c Config) ToleranceBand() float64 {
	return c.PassBand * 100
}

// Verifier runs verifications. It holds no per-call state; every call owns
// its retry budget and artifacts.
type Verifier struct {
	cfg      Config
	capturer Capturer
	refs     Baselines
	differ   imagediff.Differ
	reporter Reporter
	recorder Recorder
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRecorder persists every verdict through rec.
func WithRecorder(rec Recorder) Option { return func(v *Verifier) { v.recorder = rec } }

// New creates a Verifier.
func New(cfg Config, c Capturer, refs Baselines, d imagediff.Differ, rep Reporter, opts ...Option) *Verifier {
	cfg.defaults()
	v := &Verifier{
		cfg:      cfg,
		capturer: c,
		refs:     refs,
		differ:   d,
		reporter: rep,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config { return v.cfg }

// Classify maps a score to an attempt outcome using the two bands.
func (v *Verifier) Classify(score imagediff.Score) Outcome {
	s := float64(score)
	switch {
	case s <= v.cfg.PassBand:
		return Matched
	case s <= v.cfg.ToleranceBand():
		return MismatchedWithinTolerance
	default:
		return MismatchedBeyondTolerance
	}
}

// ScreenshotsRoot is the shared parent of every attempt directory.
func (v *Verifier) ScreenshotsRoot() string {
	return filepath.Join(v.cfg.TempRoot, ScreenshotsDir)
}

// Verify checks region against the design reference called name. A nil
// error means a verdict was reached; use Result.Passed for it.
func (v *Verifier) Verify(ctx context.Context, region capture.Region, name string) (*Result, error) {
	log := v.cfg.Logger.With("reference", name, "browser", v.refs.Browser())
	res := &Result{
		Reference: name,
		Browser:   v.refs.Browser(),
		Region:    region,
		Started:   time.Now(),
	}

	if _, err := v.refs.Path(name); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	root := v.ScreenshotsRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("verify: mkdir %s: %w", root, err)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Info("verify: retrying after mismatch",
				"attempt", attempt, "score", float64(res.Score), "delay", v.cfg.RetryDelay)
			v.cfg.Sleep(v.cfg.RetryDelay)
		}

		dir, err := os.MkdirTemp(root, "")
		if err != nil {
			return nil, fmt.Errorf("verify: temp dir: %w", err)
		}
		candidate := filepath.Join(dir, name)
		diff := DiffPath(candidate)

		if err := v.capturer.Capture(ctx, region, candidate); err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}

		baseline, exists, err := v.refs.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		res.Candidate, res.Baseline = candidate, baseline

		if !exists {
			res.Outcome = NoBaseline
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Candidate: candidate, Outcome: NoBaseline})
			log.Error("verify: design reference missing", "baseline", baseline, "candidate", candidate)
			v.reporter.NewBaseline(diagnostics.NewBaseline{Candidate: candidate, Reference: baseline})
			return v.finish(ctx, log, res), nil
		}

		score, err := v.differ.Compare(ctx, candidate, baseline, diff)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		res.Score, res.Diff = score, diff

		outcome := v.Classify(score)
		switch outcome {
		case Matched:
			res.Outcome = Matched
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Candidate: candidate, Diff: diff, Score: score, Outcome: Matched})
			return v.finish(ctx, log, res), nil

		case MismatchedWithinTolerance:
			res.Outcome = MismatchedWithinTolerance
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Candidate: candidate, Diff: diff, Score: score, Outcome: outcome})
			log.Warn("verify: difference within tolerance", "score", float64(score), "tolerance", v.cfg.ToleranceBand())
			v.reporter.Mismatch(v.mismatch(res), diagnostics.Warning)
			return v.finish(ctx, log, res), nil
		}

		if attempt >= v.cfg.MaxRetries {
			res.Outcome = MismatchedBeyondTolerance
			res.Attempts = append(res.Attempts, Attempt{Number: attempt, Candidate: candidate, Diff: diff, Score: score, Outcome: RetriesExhausted})
			log.Error("verify: error comparing screenshot files",
				"score", float64(score), "attempts", attempt+1, "candidate", candidate, "baseline", baseline)
			v.reporter.Mismatch(v.mismatch(res), diagnostics.Alarm)
			return v.finish(ctx, log, res), nil
		}
		res.Attempts = append(res.Attempts, Attempt{Number: attempt, Candidate: candidate, Diff: diff, Score: score, Outcome: outcome})
	}
}

func (v *Verifier) mismatch(res *Result) diagnostics.Mismatch {
	_, err := os.Stat(res.Diff)
	return diagnostics.Mismatch{
		Candidate:  res.Candidate,
		Reference:  res.Baseline,
		Diff:       res.Diff,
		DiffExists: err == nil,
		Score:      float64(res.Score),
	}
}

func (v *Verifier) finish(ctx context.Context, log *slog.Logger, res *Result) *Result {
	res.Duration = time.Since(res.Started)
	log.Debug("verify: verdict", "outcome", res.Outcome, "score", float64(res.Score), "attempts", len(res.Attempts))
	if v.recorder != nil {
		if err := v.recorder.Record(ctx, res); err != nil {
			log.Warn("verify: record result failed", "error", err)
		}
	}
	return res
}

// DiffPath returns the sibling path of the visual diff for a candidate:
// "a/b.png" → "a/b.diff.png".
func DiffPath(candidate string) string {
	ext := filepath.Ext(candidate)
	if strings.EqualFold(ext, ".png") {
		return strings.TrimSuffix(candidate, ext) + ".diff.png"
	}
	return candidate + ".diff.png"
}

// IsFault reports whether err ended a verification without a verdict.
func IsFault(err error) bool {
	return err != nil && !errors.Is(err, ErrNoBaseline) && !errors.Is(err, ErrRetriesExhausted)
}
