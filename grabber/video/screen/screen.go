package screen

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/video"
	"github.com/kbinani/screenshot"
)

var l = gogger.New("grabber.video.screen")

// Grabber captures a rectangle of the desktop
type Grabber func(bounds image.Rectangle) (*image.RGBA, error)

// Screen captures one display at a fixed rate
type Screen struct {
	locker   sync.Locker
	interval time.Duration
	lastTime time.Time
	ring     *frame.Ring
	bounds   image.Rectangle
	opened   bool

	Display   int
	FrameRate float64
	Buffers   int
	Grab      Grabber
	Displays  func() int
	Bounds    func(display int) image.Rectangle
}

var _ video.Source = (*Screen)(nil)

func (s *Screen) Open() error {
	s.locker.Lock()
	defer s.locker.Unlock()

	src := "display " + strconv.Itoa(s.Display)

	count := s.Displays()
	if s.Display < 0 || s.Display >= count {
		return &video.OpenError{Src: src, Err: fmt.Errorf("%d active display(s) found", count)}
	}

	bounds := s.Bounds(s.Display)
	if bounds.Empty() {
		return &video.OpenError{Src: src, Err: frame.ErrEmptyFrame}
	}

	// a first grab tells whether the framebuffer is readable at all
	img, err := s.Grab(bounds)
	if err != nil {
		return &video.OpenError{Src: src, Err: err}
	}
	if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
		l.Warn().Printf("%s: bounds %v, framebuffer %v", src, bounds, img.Bounds())
		bounds = image.Rectangle{Min: bounds.Min, Max: bounds.Min.Add(img.Bounds().Size())}
	}

	s.bounds = bounds
	s.ring = frame.NewRing(s.Buffers, bounds.Dx(), bounds.Dy())
	s.lastTime = time.Time{}
	s.opened = true

	l.Info().Printf("%s: capturing %dx%d", src, bounds.Dx(), bounds.Dy())

	return nil
}

func (s *Screen) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()

	s.opened = false
	s.ring = nil
	return nil
}

func (s *Screen) GetSize() (image.Point, error) {
	s.locker.Lock()
	defer s.locker.Unlock()

	if !s.opened {
		return image.Point{}, video.ErrNotOpened
	}
	return s.bounds.Size(), nil
}

func (s *Screen) GetFrameRate() float64 {
	return s.FrameRate
}

func (s *Screen) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	s.locker.Lock()
	opened, ring, bounds := s.opened, s.ring, s.bounds
	s.locker.Unlock()

	if !opened {
		return nil, video.ErrNotOpened
	}

	if !s.lastTime.IsZero() {
		wait := time.Until(s.lastTime.Add(s.interval))
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	s.lastTime = time.Now()

	img, err := s.Grab(bounds)
	if err != nil {
		return nil, &video.CaptureError{Err: err}
	}
	if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
		return nil, video.NewCaptureError("display resized to %v", img.Bounds().Size())
	}

	f, err := ring.Get(ctx)
	if err != nil {
		return nil, err
	}
	frame.FillFromImage(f, img)

	return f, nil
}

type Options struct {
	video.Options
}

// NewScreen parses src as the display index, empty means the primary display
func NewScreen(src string, options *Options) (*Screen, error) {
	if options == nil {
		options = &Options{}
	}

	if options.FrameRate <= 0 {
		options.FrameRate = 10
	}

	display := 0
	if src != "" {
		var err error
		display, err = strconv.Atoi(src)
		if err != nil {
			return nil, fmt.Errorf("display should be an index: %w", err)
		}
	}

	return &Screen{
		locker:   &sync.Mutex{},
		interval: time.Duration(float64(time.Second) / options.FrameRate),

		Display:   display,
		FrameRate: options.FrameRate,
		Buffers:   options.Buffers,
		Grab:      screenshot.CaptureRect,
		Displays:  screenshot.NumActiveDisplays,
		Bounds:    screenshot.GetDisplayBounds,
	}, nil
}
