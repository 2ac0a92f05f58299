package history

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"github.com/hazyhaar/designref/kit"
	"github.com/hazyhaar/designref/verify"
)

// Recorder adapts Store to verify.Recorder. Run, feature and scenario are
// taken from the kit context values.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger}
}

// Record stores res. For a compared pair the perceptual-hash distance
// between candidate and baseline is stored alongside the MAE score.
func (r *Recorder) Record(ctx context.Context, res *verify.Result) error {
	e := FromResult(res)
	e.RunID = kit.GetRunID(ctx)
	e.Feature = kit.GetFeature(ctx)
	e.Scenario = kit.GetScenario(ctx)

	if res.Outcome != verify.NoBaseline && res.Candidate != "" && res.Baseline != "" {
		d, err := PerceptualDistance(res.Candidate, res.Baseline)
		if err != nil {
			r.logger.Debug("history: phash skipped", "reference", res.Reference, "error", err)
		} else {
			e.PHashDistance = d
		}
	}
	return r.store.Record(ctx, e)
}

// PerceptualDistance is the Hamming distance between the pHash of two
// images: 0 for perceptually identical, up to 64.
func PerceptualDistance(a, b string) (int, error) {
	ha, err := perceptionHash(a)
	if err != nil {
		return -1, err
	}
	hb, err := perceptionHash(b)
	if err != nil {
		return -1, err
	}
	return ha.Distance(hb)
}

func perceptionHash(path string) (*goimagehash.ImageHash, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return goimagehash.PerceptionHash(img)
}
