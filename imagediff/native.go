package imagediff

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

var diffMarker = color.NRGBA{R: 255, A: 255}

// Native computes the normalised RGB mean absolute error in-process. Alpha
// is ignored, matching compare in RGB colourspace on opaque screenshots.
type Native struct{}

func (Native) Compare(ctx context.Context, candidate, baseline, diffOut string) (Score, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("imagediff: compare: %w", err)
	}

	a, err := imaging.Open(candidate)
	if err != nil {
		return 0, fmt.Errorf("imagediff: open candidate: %w", err)
	}
	b, err := imaging.Open(baseline)
	if err != nil {
		return 0, fmt.Errorf("imagediff: open baseline: %w", err)
	}

	na, nb := imaging.Clone(a), imaging.Clone(b)
	if na.Bounds().Size() != nb.Bounds().Size() {
		return MaxScore, nil
	}

	score, diff := meanAbsoluteError(na, nb)
	if score > 0 && diffOut != "" {
		if err := imaging.Save(diff, diffOut); err != nil {
			return score, fmt.Errorf("imagediff: save diff: %w", err)
		}
	}
	return score, nil
}

// meanAbsoluteError returns the MAE of two same-sized NRGBA images and a diff
// image with differing pixels in red over a dimmed greyscale of a.
func meanAbsoluteError(a, b *image.NRGBA) (Score, *image.NRGBA) {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	diff := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return 0, diff
	}

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*a.Stride + x*4
			j := y*b.Stride + x*4
			dr := absDiff(a.Pix[i], b.Pix[j])
			dg := absDiff(a.Pix[i+1], b.Pix[j+1])
			db := absDiff(a.Pix[i+2], b.Pix[j+2])
			sum += float64(dr+dg+db) / 3

			k := y*diff.Stride + x*4
			if dr|dg|db != 0 {
				copy(diff.Pix[k:k+4], []uint8{diffMarker.R, diffMarker.G, diffMarker.B, diffMarker.A})
				continue
			}
			gray := uint8((int(a.Pix[i]) + int(a.Pix[i+1]) + int(a.Pix[i+2])) / 6)
			copy(diff.Pix[k:k+4], []uint8{gray, gray, gray, 255})
		}
	}
	return Score(sum / (float64(w*h) * 255)), diff
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
