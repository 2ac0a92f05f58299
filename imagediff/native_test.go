package imagediff

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func saveTestImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func TestNative_Identical(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	diff := filepath.Join(dir, "a.diff.png")
	saveTestImage(t, solid(10, 10, color.NRGBA{255, 0, 0, 255}), a)
	saveTestImage(t, solid(10, 10, color.NRGBA{255, 0, 0, 255}), b)

	score, err := Native{}.Compare(context.Background(), a, b, diff)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if score != 0 {
		t.Fatalf("score: got %v, want 0", score)
	}
	if _, err := os.Stat(diff); !os.IsNotExist(err) {
		t.Fatalf("diff image should not be written for identical images, stat err = %v", err)
	}
}

func TestNative_OppositeColours(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	diff := filepath.Join(dir, "a.diff.png")
	saveTestImage(t, solid(4, 4, color.White), a)
	saveTestImage(t, solid(4, 4, color.Black), b)

	score, err := Native{}.Compare(context.Background(), a, b, diff)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if score != 1 {
		t.Fatalf("score: got %v, want 1", score)
	}
	img, err := imaging.Open(diff)
	if err != nil {
		t.Fatalf("diff image: %v", err)
	}
	r, g, bl, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g != 0 || bl != 0 {
		t.Fatalf("diff pixel: got %d,%d,%d, want red", r>>8, g>>8, bl>>8)
	}
}

func TestNative_SinglePixel(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	img := solid(10, 10, color.White)
	saveTestImage(t, img, a)
	img.Set(3, 3, color.Black)
	saveTestImage(t, img, b)

	score, err := Native{}.Compare(context.Background(), a, b, filepath.Join(dir, "d.png"))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	// One of 100 pixels fully different.
	if math.Abs(float64(score)-0.01) > 1e-9 {
		t.Fatalf("score: got %v, want 0.01", score)
	}
}

func TestNative_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	saveTestImage(t, solid(10, 10, color.White), a)
	saveTestImage(t, solid(12, 10, color.White), b)

	score, err := Native{}.Compare(context.Background(), a, b, filepath.Join(dir, "d.png"))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if score != MaxScore {
		t.Fatalf("score: got %v, want %v", score, MaxScore)
	}
}

func TestNative_MissingFileIsFault(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	saveTestImage(t, solid(2, 2, color.White), a)

	if _, err := (Native{}).Compare(context.Background(), a, filepath.Join(dir, "missing.png"), ""); err == nil {
		t.Fatal("expected error for missing baseline")
	}
}
