package handler

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/delivery"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/signal"
	"github.com/allape/hypercap/helper"
)

var l = gogger.New("grabber.handler")

// Sender is the part of delivery.Client the image handler needs
type Sender interface {
	Send(ctx context.Context, f *frame.Frame, priority int32) error
	Clear(ctx context.Context, priority int32) error
}

type Stats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
	NoSignal  uint64 `json:"no_signal"`
	Signal    bool   `json:"signal"`
}

// ImageHandler
// Forwards accepted frames to the controller while the source has a signal.
// Delivery failures drop the frame, they never stop the capture.
type ImageHandler struct {
	sender   Sender
	detector *signal.Detector

	delivered atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	noSignal  atomic.Uint64
	signal    atomic.Bool

	Priority int32
}

// NewImageHandler disables signal detection for a negative threshold
func NewImageHandler(sender Sender, priority int32, signalThreshold float64) *ImageHandler {
	h := &ImageHandler{
		sender:   sender,
		Priority: priority,
	}
	if signalThreshold >= 0 {
		h.detector = signal.NewDetector(signalThreshold)
	}
	h.signal.Store(true)
	return h
}

func (h *ImageHandler) Handle(ctx context.Context, f *frame.Frame) error {
	if h.detector != nil {
		on, changed := h.detector.Update(f)
		h.signal.Store(on)

		if changed && !on {
			if err := h.sender.Clear(ctx, h.Priority); err != nil {
				l.Warn().Println("clear on signal loss:", err)
			}
		}
		if !on {
			h.noSignal.Add(1)
			return nil
		}
	}

	err := h.sender.Send(ctx, f, h.Priority)
	if err == nil {
		h.delivered.Add(1)
		return nil
	}

	if errors.Is(err, delivery.ErrRejected) {
		h.rejected.Add(1)
	}
	h.dropped.Add(1)
	l.Warn().Println("frame dropped:", err)

	return nil
}

func (h *ImageHandler) Stats() Stats {
	return Stats{
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Rejected:  h.rejected.Load(),
		NoSignal:  h.noSignal.Load(),
		Signal:    h.signal.Load(),
	}
}

// Screenshot saves the frame it receives, used with a capture of one frame
func Screenshot(path string) func(ctx context.Context, f *frame.Frame) error {
	return func(_ context.Context, f *frame.Frame) error {
		if err := helper.SaveScreenshot(f, path); err != nil {
			return err
		}
		l.Info().Println("screenshot saved to", path)
		return nil
	}
}
