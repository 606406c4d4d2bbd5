package frame

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	f := New(4, 2)
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}

	f.Pix = f.Pix[:len(f.Pix)-1]
	if err := f.Validate(); err == nil {
		t.Fatal("Expected length mismatch error, got nil")
	}

	if err := New(0, 2).Validate(); err != ErrEmptyFrame {
		t.Fatalf("Expected ErrEmptyFrame, got %v", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 13, 12))
	img.SetRGBA(10, 10, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(12, 11, color.RGBA{R: 7, G: 8, B: 9, A: 255})

	f := FromImage(img)
	if f.Width != 3 || f.Height != 2 {
		t.Fatalf("Expected 3x2, got %dx%d", f.Width, f.Height)
	}
	if r, g, b := f.RGB(0, 0); r != 1 || g != 2 || b != 3 {
		t.Fatalf("Expected (1,2,3), got (%d,%d,%d)", r, g, b)
	}
	if r, g, b := f.RGB(2, 1); r != 7 || g != 8 || b != 9 {
		t.Fatalf("Expected (7,8,9), got (%d,%d,%d)", r, g, b)
	}

	back := f.ToImage()
	if c := back.RGBAAt(2, 1); c.R != 7 || c.G != 8 || c.B != 9 || c.A != 255 {
		t.Fatalf("Expected (7,8,9,255), got %v", c)
	}
}

func TestRing(t *testing.T) {
	r := NewRing(2, 4, 4)

	a, err := r.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b := r.TryGet()
	if b == nil {
		t.Fatal("Expected a second buffer")
	}
	if r.TryGet() != nil {
		t.Fatal("Expected ring to be exhausted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Get(ctx); err == nil {
		t.Fatal("Expected Get to time out on an exhausted ring")
	}

	a.Release()
	a.Release()
	if r.Free() != 1 {
		t.Fatalf("Expected 1 free buffer, got %d", r.Free())
	}

	b.Release()
	if r.Free() != 2 {
		t.Fatalf("Expected 2 free buffers, got %d", r.Free())
	}
}
