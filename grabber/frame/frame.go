package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

const BytesPerPixel = 3

type Format string

const (
	RGB24 Format = "rgb24"
)

var ErrEmptyFrame = errors.New("frame has zero width or height")

// Frame
// A packed RGB image, 3 bytes per pixel, rows top to bottom without padding.
// A Frame belongs to whoever holds it, call Release once it is no longer needed.
type Frame struct {
	Width  int
	Height int
	Format Format
	Pix    []byte

	release func(*Frame)
}

func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: RGB24,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return ErrEmptyFrame
	}
	if len(f.Pix) != f.Width*f.Height*BytesPerPixel {
		return fmt.Errorf("frame buffer length mismatch: %d != %dx%dx%d", len(f.Pix), f.Width, f.Height, BytesPerPixel)
	}
	return nil
}

func (f *Frame) Size() image.Point {
	return image.Point{X: f.Width, Y: f.Height}
}

func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * BytesPerPixel
}

func (f *Frame) RGB(x, y int) (r, g, b byte) {
	i := f.Offset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

func (f *Frame) SetRGB(x, y int, r, g, b byte) {
	i := f.Offset(x, y)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Release hands the buffer back to the ring it came from. It is safe to call more than once.
func (f *Frame) Release() {
	if f == nil || f.release == nil {
		return
	}
	release := f.release
	f.release = nil
	release(f)
}

func (f *Frame) Clone() *Frame {
	c := New(f.Width, f.Height)
	copy(c.Pix, f.Pix)
	return c
}

// ToImage copies the frame into an image.RGBA
func (f *Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGB(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}

// FromImage converts any image into a packed RGB frame, alpha is dropped.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())
	FillFromImage(f, img)
	return f
}

// FillFromImage writes img into f, both must have the same size.
func FillFromImage(f *Frame, img image.Image) {
	bounds := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			row := rgba.Pix[rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := f.Pix[y*f.Width*BytesPerPixel:]
			for x := 0; x < f.Width; x++ {
				dst[x*3] = row[x*4]
				dst[x*3+1] = row[x*4+1]
				dst[x*3+2] = row[x*4+2]
			}
		}
		return
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			f.SetRGB(x, y, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
}
