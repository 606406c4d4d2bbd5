package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/geometry"
	"github.com/allape/hypercap/grabber/video"
)

var l = gogger.New("grabber.dispatcher")

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const DefaultMaxCaptureErrors = 10

var (
	ErrNotRunning           = errors.New("dispatcher is not running")
	ErrAlreadyRunning       = errors.New("dispatcher is already running")
	ErrNoCallback           = errors.New("no callback registered")
	ErrTooManyCaptureErrors = errors.New("too many consecutive capture errors")
)

// Callback receives every accepted frame synchronously, the frame is only valid until it returns.
// A non-nil error aborts the capture loop and is returned from Capture.
type Callback func(ctx context.Context, f *frame.Frame) error

type Options struct {
	Geometry         geometry.Transform
	FrameDecimation  int
	MaxCaptureErrors int
}

type settings struct {
	geometry        geometry.Transform
	frameDecimation int
}

// Dispatcher
// Pulls frames from a Source, drops all but every FrameDecimation-th,
// transforms the rest and hands them to the callback one at a time.
type Dispatcher struct {
	locker   sync.Locker
	source   video.Source
	callback Callback
	state    State
	looping  bool
	done     chan struct{}

	settings atomic.Pointer[settings]
	counter  uint64
	stats    counters

	MaxCaptureErrors int
}

func New(source video.Source, options Options) *Dispatcher {
	if options.MaxCaptureErrors <= 0 {
		options.MaxCaptureErrors = DefaultMaxCaptureErrors
	}

	d := &Dispatcher{
		locker: &sync.Mutex{},
		source: source,
		state:  Idle,

		MaxCaptureErrors: options.MaxCaptureErrors,
	}
	d.settings.Store(&settings{
		geometry:        options.Geometry.Normalize(),
		frameDecimation: max(1, options.FrameDecimation),
	})

	return d
}

func (d *Dispatcher) SetCallback(callback Callback) {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.callback = callback
}

func (d *Dispatcher) State() State {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.state
}

func (d *Dispatcher) Geometry() geometry.Transform {
	return d.settings.Load().geometry
}

func (d *Dispatcher) FrameDecimation() int {
	return d.settings.Load().frameDecimation
}

// OutputSize is the size of the frames handed to the callback, only valid while running
func (d *Dispatcher) OutputSize() (int, int, error) {
	size, err := d.source.GetSize()
	if err != nil {
		return 0, 0, err
	}
	return d.Geometry().OutputSize(size.X, size.Y)
}

// Reconfigure swaps geometry and frame decimation, the loop picks them up at the next frame.
// While running the geometry is validated against the negotiated size first.
func (d *Dispatcher) Reconfigure(g geometry.Transform, frameDecimation int) error {
	g = g.Normalize()

	if d.State() == Running {
		size, err := d.source.GetSize()
		if err != nil {
			return err
		}
		if err := g.Validate(size.X, size.Y); err != nil {
			return err
		}
	}

	d.settings.Store(&settings{
		geometry:        g,
		frameDecimation: max(1, frameDecimation),
	})

	l.Info().Printf("geometry %+v, frame decimation %d", g, max(1, frameDecimation))

	return nil
}

// Start opens the source and checks the geometry against the negotiated size.
// Any error leaves the dispatcher Idle with the source closed.
func (d *Dispatcher) Start() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.state != Idle {
		return ErrAlreadyRunning
	}

	err := d.source.Open()
	if err != nil {
		return err
	}

	size, err := d.source.GetSize()
	if err != nil {
		_ = d.source.Close()
		return err
	}

	g := d.settings.Load().geometry
	if err := g.Validate(size.X, size.Y); err != nil {
		_ = d.source.Close()
		return err
	}

	w, h, _ := g.OutputSize(size.X, size.Y)
	l.Info().Printf("capture %dx%d, output %dx%d", size.X, size.Y, w, h)

	d.counter = 0
	d.state = Running

	return nil
}

// Stop is safe to call from any state and any goroutine, including the callback.
// An active Capture loop notices at its next safe point and closes the source itself.
func (d *Dispatcher) Stop() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	switch d.state {
	case Idle:
		return nil
	case Stopping:
		return nil
	}

	if d.looping {
		d.state = Stopping
		return nil
	}

	d.state = Idle
	return d.source.Close()
}

// Wait blocks until the active Capture loop has returned
func (d *Dispatcher) Wait() {
	d.locker.Lock()
	done := d.done
	d.locker.Unlock()

	if done != nil {
		<-done
	}
}

func (d *Dispatcher) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.state != Running
}

func (d *Dispatcher) finish() {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.state != Idle {
		if err := d.source.Close(); err != nil {
			l.Warn().Println("close source:", err)
		}
	}
	d.state = Idle
	d.looping = false
	close(d.done)
	d.done = nil
}

// Capture runs the loop until ctx is done, Stop is called, a fatal error occurs,
// or n frames were accepted when n > 0. The dispatcher is Idle when it returns.
func (d *Dispatcher) Capture(ctx context.Context, n int) error {
	d.locker.Lock()
	if d.state != Running {
		d.locker.Unlock()
		return ErrNotRunning
	}
	if d.looping {
		d.locker.Unlock()
		return ErrAlreadyRunning
	}
	if d.callback == nil {
		d.locker.Unlock()
		return ErrNoCallback
	}
	callback := d.callback
	d.looping = true
	d.done = make(chan struct{})
	d.locker.Unlock()

	defer d.finish()

	accepted := 0
	failures := 0

	for {
		if d.shouldStop(ctx) {
			return nil
		}

		raw, err := d.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !video.IsTransient(err) {
				return err
			}

			failures++
			d.stats.captureErrors.Add(1)
			l.Warn().Printf("capture error (%d/%d): %v", failures, d.MaxCaptureErrors, err)
			if failures >= d.MaxCaptureErrors {
				return fmt.Errorf("%w: %v", ErrTooManyCaptureErrors, err)
			}
			continue
		}
		failures = 0

		// termination may have arrived while ReadFrame was blocked
		if d.shouldStop(ctx) {
			raw.Release()
			return nil
		}

		d.counter++
		d.stats.raw.Add(1)

		s := d.settings.Load()
		if d.counter%uint64(s.frameDecimation) != 0 {
			raw.Release()
			d.stats.skipped.Add(1)
			continue
		}

		out, err := s.geometry.Apply(raw)
		raw.Release()
		if err != nil {
			// the source renegotiated into a size the geometry can not handle
			return err
		}

		d.stats.accepted.Add(1)
		err = callback(ctx, out)
		if err != nil {
			return err
		}

		accepted++
		if n > 0 && accepted >= n {
			return nil
		}
	}
}

func (d *Dispatcher) Stats() Stats {
	return d.stats.Snapshot()
}
