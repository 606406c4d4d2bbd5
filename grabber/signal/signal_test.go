package signal

import (
	"testing"

	"github.com/allape/hypercap/grabber/frame"
)

func solid(v byte) *frame.Frame {
	f := frame.New(8, 6)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestHasSignal(t *testing.T) {
	d := NewDetector(0.1)

	if d.HasSignal(solid(10)) {
		t.Fatal("Expected no signal for a dark frame")
	}
	if !d.HasSignal(solid(200)) {
		t.Fatal("Expected signal for a bright frame")
	}

	f := solid(0)
	f.SetRGB(4, 3, 0, 0, 255)
	if !d.HasSignal(f) {
		t.Fatal("Expected signal for a single bright pixel")
	}
}

func TestZeroThresholdAlwaysSignal(t *testing.T) {
	d := NewDetector(0)
	if !d.HasSignal(solid(0)) {
		t.Fatal("Expected signal with threshold 0")
	}
}

func TestHysteresis(t *testing.T) {
	d := NewDetector(0.1)
	dark, bright := solid(0), solid(255)

	if s, changed := d.Update(dark); !s || changed {
		t.Fatalf("Expected signal kept after one dark frame, got %v %v", s, changed)
	}
	if s, changed := d.Update(bright); !s || changed {
		t.Fatalf("Expected no change, got %v %v", s, changed)
	}

	d.Update(dark)
	s, changed := d.Update(dark)
	if s || !changed {
		t.Fatalf("Expected signal lost after two dark frames, got %v %v", s, changed)
	}
	if s, changed := d.Update(dark); s || changed {
		t.Fatalf("Expected no repeated change, got %v %v", s, changed)
	}

	d.Update(bright)
	s, changed = d.Update(bright)
	if !s || !changed {
		t.Fatalf("Expected signal back, got %v %v", s, changed)
	}
	if !d.Signal() {
		t.Fatal("Expected signal state")
	}
}
