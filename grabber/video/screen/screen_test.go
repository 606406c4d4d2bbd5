package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/allape/hypercap/grabber/video"
)

func fakeScreen(t *testing.T, width, height int) *Screen {
	t.Helper()

	s, err := NewScreen("0", &Options{Options: video.Options{FrameRate: 1000}})
	if err != nil {
		t.Fatal(err)
	}

	s.Displays = func() int { return 1 }
	s.Bounds = func(int) image.Rectangle { return image.Rect(0, 0, width, height) }
	s.Grab = func(bounds image.Rectangle) (*image.RGBA, error) {
		img := image.NewRGBA(bounds)
		img.SetRGBA(bounds.Min.X, bounds.Min.Y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		return img, nil
	}

	return s
}

func TestScreen(t *testing.T) {
	s := fakeScreen(t, 32, 18)

	err := s.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.Close()
	}()

	size, err := s.GetSize()
	if err != nil {
		t.Fatal(err)
	}
	if size.X != 32 || size.Y != 18 {
		t.Fatalf("Expected 32x18, got %v", size)
	}

	f, err := s.ReadFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()

	if r, g, b := f.RGB(0, 0); r != 10 || g != 20 || b != 30 {
		t.Fatalf("Expected (10,20,30), got (%d,%d,%d)", r, g, b)
	}
}

func TestScreenMissingDisplay(t *testing.T) {
	s := fakeScreen(t, 32, 18)
	s.Display = 3

	var oe *video.OpenError
	if err := s.Open(); !errors.As(err, &oe) {
		t.Fatalf("Expected OpenError, got %v", err)
	}
}

func TestScreenGrabFailureIsTransient(t *testing.T) {
	s := fakeScreen(t, 8, 8)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}

	s.Grab = func(image.Rectangle) (*image.RGBA, error) {
		return nil, errors.New("framebuffer busy")
	}

	_, err := s.ReadFrame(context.Background())
	if !video.IsTransient(err) {
		t.Fatalf("Expected CaptureError, got %v", err)
	}
}

func TestNewScreenRejectsNonIndex(t *testing.T) {
	if _, err := NewScreen(":0.0", nil); err == nil {
		t.Fatal("Expected error for non numeric display")
	}
}
