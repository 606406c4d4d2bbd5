package video

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/frame"
)

// Source
// One capture backend. ReadFrame blocks until the next frame is available,
// the returned frame must be released before the backend can reuse its buffer.
type Source interface {
	Open() error
	Close() error

	// GetSize returns the negotiated size, only valid after Open
	GetSize() (image.Point, error)
	GetFrameRate() float64

	ReadFrame(ctx context.Context) (*frame.Frame, error)
}

type Options struct {
	Width         int
	Height        int
	FrameRate     float64
	Buffers       int
	SetupCommands []config.ShellCommand
}

var ErrNotOpened = errors.New("source is not opened")

// OpenError means the device or display is unusable, it is never retried
type OpenError struct {
	Src string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Src, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// CaptureError is a failed read that may succeed on the next attempt
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return "capture: " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

func NewCaptureError(format string, args ...any) error {
	return &CaptureError{Err: fmt.Errorf(format, args...)}
}

func IsTransient(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}
