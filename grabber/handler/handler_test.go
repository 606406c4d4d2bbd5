package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/allape/hypercap/grabber/delivery"
	"github.com/allape/hypercap/grabber/frame"
)

type fakeSender struct {
	sent    int
	cleared []int32
	err     error
}

func (s *fakeSender) Send(_ context.Context, _ *frame.Frame, _ int32) error {
	if s.err != nil {
		return s.err
	}
	s.sent++
	return nil
}

func (s *fakeSender) Clear(_ context.Context, priority int32) error {
	s.cleared = append(s.cleared, priority)
	return nil
}

func solid(v byte) *frame.Frame {
	f := frame.New(4, 4)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func TestHandleWithoutDetector(t *testing.T) {
	sender := &fakeSender{}
	h := NewImageHandler(sender, 800, -1)

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), solid(0)); err != nil {
			t.Fatal(err)
		}
	}

	if sender.sent != 3 {
		t.Fatalf("Expected 3 frames sent, got %d", sender.sent)
	}
	if stats := h.Stats(); stats.Delivered != 3 || !stats.Signal {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSignalGate(t *testing.T) {
	sender := &fakeSender{}
	h := NewImageHandler(sender, 700, 0.1)
	ctx := context.Background()

	frames := []*frame.Frame{solid(255), solid(0), solid(0), solid(0), solid(255), solid(255), solid(255)}
	for _, f := range frames {
		if err := h.Handle(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	// the first dark frame still passes, the second flips the state
	if sender.sent != 4 {
		t.Fatalf("Expected 4 frames sent, got %d", sender.sent)
	}
	if len(sender.cleared) != 1 || sender.cleared[0] != 700 {
		t.Fatalf("Expected a single clear with priority 700, got %v", sender.cleared)
	}

	stats := h.Stats()
	if stats.NoSignal != 3 || !stats.Signal {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendErrorDropsFrame(t *testing.T) {
	sender := &fakeSender{err: &delivery.SendError{Err: delivery.ErrRejected, Rejected: true}}
	h := NewImageHandler(sender, 800, -1)

	if err := h.Handle(context.Background(), solid(10)); err != nil {
		t.Fatalf("Expected frame to be dropped silently, got %v", err)
	}

	sender.err = &delivery.SendError{Err: errors.New("broken pipe"), Reconnected: true}
	if err := h.Handle(context.Background(), solid(10)); err != nil {
		t.Fatal(err)
	}

	stats := h.Stats()
	if stats.Dropped != 2 || stats.Rejected != 1 || stats.Delivered != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestScreenshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screenshot.png")
	if err := Screenshot(path)(context.Background(), solid(100)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
