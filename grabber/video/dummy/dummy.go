package dummy

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/video"
	"github.com/allape/hypercap/grabber/video/placeholder"
)

var l = gogger.New("grabber.video.dummy")

// Source renders a moving test pattern at a fixed rate, no hardware needed
type Source struct {
	locker   sync.Locker
	ring     *frame.Ring
	interval time.Duration
	lastTime time.Time
	count    int

	src string

	Width     int
	Height    int
	FrameRate float64
	Buffers   int
}

var _ video.Source = (*Source)(nil)

func (s *Source) Open() error {
	s.locker.Lock()
	defer s.locker.Unlock()

	if s.Width <= 0 || s.Height <= 0 {
		return &video.OpenError{Src: s.src, Err: frame.ErrEmptyFrame}
	}

	s.ring = frame.NewRing(s.Buffers, s.Width, s.Height)
	s.lastTime = time.Time{}
	s.count = 0

	l.Verbose().Printf("opened %dx%d @ %.2f fps", s.Width, s.Height, s.FrameRate)

	return nil
}

func (s *Source) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()

	s.ring = nil
	return nil
}

func (s *Source) GetSize() (image.Point, error) {
	return image.Point{X: s.Width, Y: s.Height}, nil
}

func (s *Source) GetFrameRate() float64 {
	return s.FrameRate
}

func (s *Source) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	s.locker.Lock()
	ring := s.ring
	s.locker.Unlock()

	if ring == nil {
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

	img, err := placeholder.CreateTestPattern(s.Width, s.Height, s.count, s.src, true)
	if err != nil {
		return nil, &video.CaptureError{Err: err}
	}
	s.count++

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

func NewSource(src string, options *Options) *Source {
	if options == nil {
		options = &Options{}
	}

	if options.Width == 0 {
		options.Width = 640
	}
	if options.Height == 0 {
		options.Height = 480
	}
	if options.FrameRate <= 0 {
		options.FrameRate = 30
	}

	return &Source{
		locker:   &sync.Mutex{},
		interval: time.Duration(float64(time.Second) / options.FrameRate),

		src:       src,
		Width:     options.Width,
		Height:    options.Height,
		FrameRate: options.FrameRate,
		Buffers:   options.Buffers,
	}
}
