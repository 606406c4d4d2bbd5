package video

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/allape/hypercap/grabber/frame"
)

type PixelFormat string

const (
	RGB24 PixelFormat = "rgb24"
	BGR24 PixelFormat = "bgr24"
	YUYV  PixelFormat = "yuyv"
	UYVY  PixelFormat = "uyvy"
	RGBA  PixelFormat = "rgba"
	BGRA  PixelFormat = "bgra"
	MJPEG PixelFormat = "mjpeg"
)

// Decode converts one raw buffer of the given format into dst.
// dst decides the geometry, raw must hold at least one full image of that size.
func Decode(dst *frame.Frame, format PixelFormat, raw []byte) error {
	pixels := dst.Width * dst.Height

	switch format {
	case RGB24, BGR24:
		if len(raw) < pixels*3 {
			return NewCaptureError("short %s buffer: %d < %d", format, len(raw), pixels*3)
		}
		copy(dst.Pix, raw[:pixels*3])
		if format == BGR24 {
			for i := 0; i < len(dst.Pix); i += 3 {
				dst.Pix[i], dst.Pix[i+2] = dst.Pix[i+2], dst.Pix[i]
			}
		}
	case RGBA, BGRA:
		if len(raw) < pixels*4 {
			return NewCaptureError("short %s buffer: %d < %d", format, len(raw), pixels*4)
		}
		r, b := 0, 2
		if format == BGRA {
			r, b = 2, 0
		}
		for i := 0; i < pixels; i++ {
			dst.Pix[i*3] = raw[i*4+r]
			dst.Pix[i*3+1] = raw[i*4+1]
			dst.Pix[i*3+2] = raw[i*4+b]
		}
	case YUYV, UYVY:
		if dst.Width%2 != 0 {
			return fmt.Errorf("%s needs an even width, got %d", format, dst.Width)
		}
		if len(raw) < pixels*2 {
			return NewCaptureError("short %s buffer: %d < %d", format, len(raw), pixels*2)
		}
		y0, u, y1, v := 0, 1, 2, 3
		if format == UYVY {
			y0, u, y1, v = 1, 0, 3, 2
		}
		for i, o := 0, 0; i < pixels*2; i, o = i+4, o+6 {
			yuvToRGB(dst.Pix[o:o+3], raw[i+y0], raw[i+u], raw[i+v])
			yuvToRGB(dst.Pix[o+3:o+6], raw[i+y1], raw[i+u], raw[i+v])
		}
	case MJPEG:
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return &CaptureError{Err: err}
		}
		size := img.Bounds().Size()
		if size.X != dst.Width || size.Y != dst.Height {
			return NewCaptureError("jpeg frame is %dx%d, expected %dx%d", size.X, size.Y, dst.Width, dst.Height)
		}
		frame.FillFromImage(dst, img)
	default:
		return fmt.Errorf("unsupported pixel format: %s", format)
	}

	return nil
}

// yuvToRGB uses the BT.601 limited range integer approximation
func yuvToRGB(dst []byte, y, u, v byte) {
	c := int(y) - 16
	d := int(u) - 128
	e := int(v) - 128

	dst[0] = clamp((298*c + 409*e + 128) >> 8)
	dst[1] = clamp((298*c - 100*d - 208*e + 128) >> 8)
	dst[2] = clamp((298*c + 516*d + 128) >> 8)
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
