// Package capture produces cropped screenshots of on-screen regions.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ErrCapture wraps every failure to produce a candidate image. It is fatal
// to a verification call: capture faults are never retried.
var ErrCapture = errors.New("capture: failed")

// fullShotName is the uncropped viewport capture kept beside each candidate.
const fullShotName = "temp.png"

// Region is the on-screen box of an element at capture time, in viewport
// pixels with the origin at the top-left corner.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts r to an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Screen takes a PNG capture of the current browser viewport.
type Screen interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer crops viewport captures to a region.
type Capturer struct {
	screen Screen
}

// New returns a Capturer reading from screen.
func New(screen Screen) *Capturer {
	return &Capturer{screen: screen}
}

// Capture takes a viewport screenshot, stores it as temp.png next to dst,
// crops it to region anchored at the top-left corner and writes the result
// to dst. Missing directories are created.
func (c *Capturer) Capture(ctx context.Context, region Region, dst string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrCapture, dir, err)
	}

	png, err := c.screen.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: screenshot: %w", ErrCapture, err)
	}
	if err := os.WriteFile(filepath.Join(dir, fullShotName), png, 0o644); err != nil {
		return fmt.Errorf("%w: write full screenshot: %w", ErrCapture, err)
	}

	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("%w: decode screenshot: %w", ErrCapture, err)
	}

	rect := region.Rect()
	if region.Width <= 0 || region.Height <= 0 {
		return fmt.Errorf("%w: empty region %s", ErrCapture, region)
	}
	if !rect.In(img.Bounds()) {
		return fmt.Errorf("%w: region %s outside screenshot bounds %v", ErrCapture, region, img.Bounds())
	}

	return writePNG(imaging.Crop(img, rect), dst)
}

// writePNG encodes img as PNG whatever the extension of the reference name.
func writePNG(img image.Image, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrCapture, dst, err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode %s: %w", ErrCapture, dst, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrCapture, dst, err)
	}
	return nil
}
