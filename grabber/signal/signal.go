package signal

import (
	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/frame"
)

var l = gogger.New("grabber.signal")

const (
	// DefaultConfirmFrames consecutive frames must agree before the state flips
	DefaultConfirmFrames = 2
	maxSamplesPerAxis    = 64
)

// Detector
// Decides whether a capture device delivers a picture or just a black screen.
// A frame has no signal when every sampled channel is below the threshold.
type Detector struct {
	level   int
	signal  bool
	pending int

	ConfirmFrames int
}

// NewDetector takes a threshold in [0, 1], the detector starts in the signal state
func NewDetector(threshold float64) *Detector {
	threshold = min(max(threshold, 0), 1)
	return &Detector{
		level:         int(threshold * 255),
		signal:        true,
		ConfirmFrames: DefaultConfirmFrames,
	}
}

func stride(size int) int {
	return max(1, size/maxSamplesPerAxis)
}

// HasSignal checks a single frame without touching the state
func (d *Detector) HasSignal(f *frame.Frame) bool {
	sx, sy := stride(f.Width), stride(f.Height)
	for y := sy / 2; y < f.Height; y += sy {
		for x := sx / 2; x < f.Width; x += sx {
			r, g, b := f.RGB(x, y)
			if int(r) >= d.level || int(g) >= d.level || int(b) >= d.level {
				return true
			}
		}
	}
	return false
}

func (d *Detector) Signal() bool {
	return d.signal
}

// Update feeds the next frame, changed is true on the frame that flipped the state
func (d *Detector) Update(f *frame.Frame) (signal bool, changed bool) {
	if d.HasSignal(f) == d.signal {
		d.pending = 0
		return d.signal, false
	}

	d.pending++
	if d.pending < max(1, d.ConfirmFrames) {
		return d.signal, false
	}

	d.pending = 0
	d.signal = !d.signal

	if d.signal {
		l.Info().Println("signal state = on")
	} else {
		l.Info().Println("signal state = off")
	}

	return d.signal, true
}
