package geometry

import (
	"fmt"

	"github.com/allape/hypercap/grabber/frame"
)

type Stereo string

const (
	StereoNone         Stereo = "none"
	StereoSideBySide   Stereo = "sbs"
	StereoTopAndBottom Stereo = "tab"
)

// Eye selects the half kept from a stereoscopic frame
type Eye string

const (
	LeftEye  Eye = "left" // left half for sbs, top half for tab
	RightEye Eye = "right"
)

type Crop struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// ConfigError reports a geometry that can not produce a non-empty frame
type ConfigError struct {
	Width  int
	Height int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid geometry for %dx%d frame: %s", e.Width, e.Height, e.Reason)
}

// Transform
// Crop, then keep every Decimation-th pixel, then optionally keep one stereo half.
type Transform struct {
	Crop       Crop
	Decimation int
	Stereo     Stereo
	Eye        Eye
}

// Normalize clamps margins to >= 0 and the decimation to >= 1
func (t Transform) Normalize() Transform {
	t.Crop.Left = max(0, t.Crop.Left)
	t.Crop.Right = max(0, t.Crop.Right)
	t.Crop.Top = max(0, t.Crop.Top)
	t.Crop.Bottom = max(0, t.Crop.Bottom)
	t.Decimation = max(1, t.Decimation)
	if t.Stereo == "" {
		t.Stereo = StereoNone
	}
	if t.Eye == "" {
		t.Eye = LeftEye
	}
	return t
}

func (t Transform) cropped(width, height int) (int, int, error) {
	t = t.Normalize()

	w := width - t.Crop.Left - t.Crop.Right
	h := height - t.Crop.Top - t.Crop.Bottom

	if w <= 0 {
		return 0, 0, &ConfigError{width, height, fmt.Sprintf("horizontal crop %d+%d removes the full width", t.Crop.Left, t.Crop.Right)}
	}
	if h <= 0 {
		return 0, 0, &ConfigError{width, height, fmt.Sprintf("vertical crop %d+%d removes the full height", t.Crop.Top, t.Crop.Bottom)}
	}

	return w, h, nil
}

func decimated(size, n int) int {
	return max(1, size/n)
}

// OutputSize returns the size of the frame Apply produces for a width x height input
func (t Transform) OutputSize(width, height int) (int, int, error) {
	t = t.Normalize()

	w, h, err := t.cropped(width, height)
	if err != nil {
		return 0, 0, err
	}

	w, h = decimated(w, t.Decimation), decimated(h, t.Decimation)
	dw, dh := w, h

	switch t.Stereo {
	case StereoNone:
	case StereoSideBySide:
		w /= 2
	case StereoTopAndBottom:
		h /= 2
	default:
		return 0, 0, &ConfigError{width, height, fmt.Sprintf("unknown stereo mode %q", t.Stereo)}
	}

	if w < 1 || h < 1 {
		return 0, 0, &ConfigError{width, height, fmt.Sprintf("stereo split of %dx%d leaves an empty half", dw, dh)}
	}

	switch t.Eye {
	case LeftEye, RightEye:
	default:
		return 0, 0, &ConfigError{width, height, fmt.Sprintf("unknown eye %q", t.Eye)}
	}

	return w, h, nil
}

// Validate checks that the transform produces a non-empty frame for the given input size
func (t Transform) Validate(width, height int) error {
	_, _, err := t.OutputSize(width, height)
	return err
}

// Apply returns a new frame, src is never written to
func (t Transform) Apply(src *frame.Frame) (*frame.Frame, error) {
	t = t.Normalize()

	outW, outH, err := t.OutputSize(src.Width, src.Height)
	if err != nil {
		return nil, err
	}

	croppedW, croppedH, _ := t.cropped(src.Width, src.Height)
	n := t.Decimation

	// origin of the kept stereo half, in decimated coordinates
	offsetX, offsetY := 0, 0
	if t.Eye == RightEye {
		switch t.Stereo {
		case StereoSideBySide:
			offsetX = outW
		case StereoTopAndBottom:
			offsetY = outH
		}
	}

	dst := frame.New(outW, outH)
	for y := 0; y < outH; y++ {
		sy := t.Crop.Top + sample(y+offsetY, n, croppedH)
		srcRow := src.Pix[sy*src.Width*frame.BytesPerPixel:]
		dstRow := dst.Pix[y*outW*frame.BytesPerPixel:]

		if n == 1 {
			start := (t.Crop.Left + offsetX) * frame.BytesPerPixel
			copy(dstRow[:outW*frame.BytesPerPixel], srcRow[start:])
			continue
		}

		for x := 0; x < outW; x++ {
			sx := (t.Crop.Left + sample(x+offsetX, n, croppedW)) * frame.BytesPerPixel
			copy(dstRow[x*frame.BytesPerPixel:(x+1)*frame.BytesPerPixel], srcRow[sx:sx+frame.BytesPerPixel])
		}
	}

	return dst, nil
}

// sample maps a decimated index to the centre of its n wide block, clamped to the cropped size
func sample(i, n, size int) int {
	return min(i*n+n/2, size-1)
}
