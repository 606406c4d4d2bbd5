package helper

import (
	"path/filepath"
	"testing"

	"github.com/allape/hypercap/grabber/frame"
	"github.com/disintegration/imaging"
)

func TestSaveScreenshot(t *testing.T) {
	f := frame.New(4, 2)
	f.SetRGB(1, 1, 10, 20, 30)

	path := filepath.Join(t.TempDir(), "shots", "screenshot.png")
	if err := SaveScreenshot(f, path); err != nil {
		t.Fatal(err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Fatalf("Expected 4x2, got %v", img.Bounds())
	}

	r, g, b, _ := img.At(1, 1).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Fatalf("Expected 10,20,30, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestSaveScreenshotWithoutExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screenshot")
	if err := SaveScreenshot(frame.New(1, 1), path); err != nil {
		t.Fatal(err)
	}
	if _, err := imaging.Open(path + ".png"); err != nil {
		t.Fatal(err)
	}
}

func TestSaveScreenshotRejectsEmptyPath(t *testing.T) {
	if err := SaveScreenshot(frame.New(1, 1), ""); err != ErrNoPath {
		t.Fatalf("Expected ErrNoPath, got %v", err)
	}
}
