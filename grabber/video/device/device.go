package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/video"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

var l = gogger.New("grabber.video.device")

const DefaultReadTimeout = 2 * time.Second

// Preferred lists the capture formats tried in order when the device default is not decodable
var Preferred = []v4l2.FourCCType{
	v4l2.PixelFmtYUYV,
	v4l2.PixelFmtRGB24,
	v4l2.PixelFmtMJPEG,
}

func fourcc(s string) v4l2.FourCCType {
	return v4l2.FourCCType(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}

func pixelFormatOf(code v4l2.FourCCType) (video.PixelFormat, bool) {
	switch code {
	case fourcc("YUYV"):
		return video.YUYV, true
	case fourcc("UYVY"):
		return video.UYVY, true
	case fourcc("RGB3"):
		return video.RGB24, true
	case fourcc("BGR3"):
		return video.BGR24, true
	case fourcc("MJPG"), fourcc("JPEG"):
		return video.MJPEG, true
	}
	return "", false
}

func fourccString(code v4l2.FourCCType) string {
	c := uint32(code)
	return strings.TrimSpace(string([]byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)}))
}

// Device
// A V4L2 capture device. Width, Height and FrameRate are requests,
// the values the driver settles on are read back after opening.
type Device struct {
	locker sync.Locker

	dev    *device.Device
	cancel context.CancelFunc
	ring   *frame.Ring
	format video.PixelFormat
	size   image.Point

	Src           string
	Width         int
	Height        int
	FrameRate     float64
	Buffers       int
	ReadTimeout   time.Duration
	SetupCommands []config.ShellCommand
}

var _ video.Source = (*Device)(nil)

func (d *Device) runSetupCommands() error {
	for _, command := range d.SetupCommands {
		cmd, err := command.ToCommand()
		if err != nil {
			return err
		} else if cmd == nil {
			continue
		}
		l.Verbose().Println(cmd.Path, cmd.Args)
		output, err := cmd.CombinedOutput()
		o := strings.TrimSpace(string(output))
		l.Verbose().Println("setup command output:", o)
		if err != nil {
			return fmt.Errorf("%s: %w: %s", cmd.String(), err, o)
		}
	}
	return nil
}

func (d *Device) negotiate(dev *device.Device) (v4l2.PixFormat, video.PixelFormat, error) {
	current, err := dev.GetPixFormat()
	if err != nil {
		return current, "", err
	}

	if format, ok := pixelFormatOf(current.PixelFormat); ok {
		return current, format, nil
	}

	for _, code := range Preferred {
		want := current
		want.PixelFormat = code
		want.Field = v4l2.FieldNone
		if err := dev.SetPixFormat(want); err != nil {
			l.Verbose().Printf("%s rejected %s: %v", d.Src, fourccString(code), err)
			continue
		}
		got, err := dev.GetPixFormat()
		if err != nil {
			return got, "", err
		}
		if format, ok := pixelFormatOf(got.PixelFormat); ok {
			return got, format, nil
		}
	}

	return current, "", fmt.Errorf("no usable pixel format, device offers %s", fourccString(current.PixelFormat))
}

func (d *Device) Open() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.dev != nil {
		return nil
	}

	if err := d.runSetupCommands(); err != nil {
		return &video.OpenError{Src: d.Src, Err: err}
	}

	options := []device.Option{
		device.WithBufferSize(uint32(max(1, d.Buffers))),
	}
	if d.Width > 0 && d.Height > 0 {
		options = append(options, device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(d.Width),
			Height:      uint32(d.Height),
			PixelFormat: Preferred[0],
			Field:       v4l2.FieldNone,
		}))
	}
	if d.FrameRate > 0 {
		options = append(options, device.WithFPS(uint32(d.FrameRate)))
	}

	dev, err := device.Open(d.Src, options...)
	if err != nil {
		return &video.OpenError{Src: d.Src, Err: err}
	}

	pix, format, err := d.negotiate(dev)
	if err != nil {
		_ = dev.Close()
		return &video.OpenError{Src: d.Src, Err: err}
	}

	d.size = image.Point{X: int(pix.Width), Y: int(pix.Height)}
	if d.size.X <= 0 || d.size.Y <= 0 {
		_ = dev.Close()
		return &video.OpenError{Src: d.Src, Err: frame.ErrEmptyFrame}
	}
	if d.Width > 0 && d.Height > 0 && (d.size.X != d.Width || d.size.Y != d.Height) {
		l.Warn().Printf("%s: requested %dx%d, device negotiated %dx%d", d.Src, d.Width, d.Height, d.size.X, d.size.Y)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return &video.OpenError{Src: d.Src, Err: err}
	}

	d.dev = dev
	d.cancel = cancel
	d.format = format
	d.ring = frame.NewRing(d.Buffers, d.size.X, d.size.Y)

	l.Info().Printf("%s: capturing %dx%d %s", d.Src, d.size.X, d.size.Y, fourccString(pix.PixelFormat))

	return nil
}

func (d *Device) Close() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.dev == nil {
		return nil
	}

	d.cancel()
	err := d.dev.Close()

	d.dev = nil
	d.ring = nil

	return err
}

func (d *Device) GetSize() (image.Point, error) {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.dev == nil {
		return image.Point{}, video.ErrNotOpened
	}
	return d.size, nil
}

func (d *Device) GetFrameRate() float64 {
	return d.FrameRate
}

func (d *Device) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	d.locker.Lock()
	dev, ring, format := d.dev, d.ring, d.format
	d.locker.Unlock()

	if dev == nil {
		return nil, video.ErrNotOpened
	}

	timer := time.NewTimer(d.ReadTimeout)
	defer timer.Stop()

	var raw []byte
	select {
	case buf, ok := <-dev.GetOutput():
		if !ok {
			return nil, &video.CaptureError{Err: io.ErrUnexpectedEOF}
		}
		raw = buf
	case <-timer.C:
		return nil, video.NewCaptureError("no frame within %s", d.ReadTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if len(raw) == 0 {
		return nil, video.NewCaptureError("empty buffer")
	}

	f, err := ring.Get(ctx)
	if err != nil {
		return nil, err
	}

	err = video.Decode(f, format, raw)
	if err != nil {
		f.Release()
		var ce *video.CaptureError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &video.CaptureError{Err: err}
	}

	return f, nil
}

type Options struct {
	video.Options
	Input    int
	Standard config.VideoStandard
}

// StandardCommands builds the v4l2-ctl calls that switch input channel and video standard
func StandardCommands(src string, input int, standard config.VideoStandard) []config.ShellCommand {
	var commands []config.ShellCommand
	if input >= 0 {
		commands = append(commands, config.ShellCommand{"v4l2-ctl", "-d", src, fmt.Sprintf("--set-input=%d", input)})
	}
	if standard != "" && standard != config.NoChange {
		commands = append(commands, config.ShellCommand{"v4l2-ctl", "-d", src, "--set-standard=" + strings.ToLower(string(standard))})
	}
	return commands
}

func NewDevice(src string, options *Options) *Device {
	if options == nil {
		options = &Options{Input: -1}
	}

	if options.Buffers <= 0 {
		options.Buffers = 4
	}

	standard, err := options.Standard.Normalize()
	if err != nil {
		l.Warn().Println(err)
	}

	return &Device{
		locker: &sync.Mutex{},

		Src:           src,
		Width:         options.Width,
		Height:        options.Height,
		FrameRate:     options.FrameRate,
		Buffers:       options.Buffers,
		ReadTimeout:   DefaultReadTimeout,
		SetupCommands: append(StandardCommands(src, options.Input, standard), options.SetupCommands...),
	}
}
