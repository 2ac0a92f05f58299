package imagediff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

const defaultCompareBin = "compare"

// maxLoggedOutput bounds how much tool output is attached to a log line.
const maxLoggedOutput = 512

// Magick runs ImageMagick's compare in RGB colourspace with the MAE metric.
//
// compare exits 0 when the images are similar and non-zero otherwise; the
// distortion is only available from its verbose text output, which is
// handed to ParseMAE.
type Magick struct {
	// Bin is the compare executable. Default: "compare" from PATH.
	Bin    string
	Logger *slog.Logger
}

func (m *Magick) Compare(ctx context.Context, candidate, baseline, diffOut string) (Score, error) {
	bin := m.Bin
	if bin == "" {
		bin = defaultCompareBin
	}
	log := m.Logger
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.CommandContext(ctx, bin,
		"-colorspace", "RGB",
		"-verbose",
		"-metric", "mae",
		candidate,
		baseline,
		diffOut,
	)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, fmt.Errorf("imagediff: compare: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, fmt.Errorf("imagediff: run %s: %w", bin, err)
	}

	score, ok := ParseMAE(string(out))
	if !ok {
		text := string(out)
		if len(text) > maxLoggedOutput {
			text = text[:maxLoggedOutput]
		}
		log.Warn("imagediff: unparseable compare output, assuming maximal difference",
			"exit_code", exitErr.ExitCode(), "output", text)
	}
	return score, nil
}
