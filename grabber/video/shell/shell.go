package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/frame"
	"github.com/allape/hypercap/grabber/video"
)

var l = gogger.New("grabber.video.shell")

const MaxJPEGSize = 16 << 20

var (
	StartMarker = []byte{0xff, 0xd8}
	EndMarker   = []byte{0xff, 0xd9}
)

// Driver
// Reads frames from the stdout of an external encoder, e.g.
// ffmpeg -f v4l2 -i /dev/video0 -f rawvideo -pix_fmt rgb24 -s 640x480 -
type Driver struct {
	locker sync.Locker

	src           config.ShellCommand
	setupCommands []config.ShellCommand

	cmd    *exec.Cmd
	stdout *bufio.Reader
	ring   *frame.Ring

	Width     int
	Height    int
	FrameRate float64
	Buffers   int
	Format    video.PixelFormat
}

var _ video.Source = (*Driver)(nil)

func (d *Driver) rawFrameSize() int {
	switch d.Format {
	case video.RGBA, video.BGRA:
		return d.Width * d.Height * 4
	case video.YUYV, video.UYVY:
		return d.Width * d.Height * 2
	}
	return d.Width * d.Height * 3
}

func (d *Driver) Open() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.cmd != nil {
		return nil
	}

	if d.Width <= 0 || d.Height <= 0 {
		return &video.OpenError{Src: d.src.String(), Err: errors.New("width and height are required for a shell source")}
	}

	cmd, err := d.src.ToCommand()
	if err != nil {
		return &video.OpenError{Src: d.src.String(), Err: err}
	} else if cmd == nil {
		return &video.OpenError{Src: d.src.String(), Err: errors.New("command is nil")}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &video.OpenError{Src: d.src.String(), Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &video.OpenError{Src: d.src.String(), Err: err}
	}

	for _, command := range d.setupCommands {
		setup, err := command.ToCommand()
		if err != nil {
			return &video.OpenError{Src: d.src.String(), Err: err}
		} else if setup == nil {
			continue
		}
		l.Verbose().Println(setup.Path, setup.Args)
		output, err := setup.CombinedOutput()
		o := string(output)
		l.Verbose().Print("setup output:", o)
		if err != nil {
			return &video.OpenError{Src: d.src.String(), Err: errors.New(strings.TrimSpace(o))}
		}
	}

	l.Verbose().Println(cmd.Path, cmd.Args)

	err = cmd.Start()
	if err != nil {
		return &video.OpenError{Src: d.src.String(), Err: err}
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := stderr.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					l.Verbose().Println(err)
				}
				return
			}
			l.Verbose().Print(string(buf[:n]))
		}
	}()

	d.cmd = cmd
	d.stdout = bufio.NewReaderSize(stdout, 64<<10)
	d.ring = frame.NewRing(d.Buffers, d.Width, d.Height)

	return nil
}

func (d *Driver) Close() error {
	d.locker.Lock()
	defer d.locker.Unlock()

	if d.cmd == nil {
		return nil
	}

	err := d.cmd.Process.Kill()
	_ = d.cmd.Wait()

	d.cmd = nil
	d.stdout = nil
	d.ring = nil

	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (d *Driver) GetFrameRate() float64 {
	return d.FrameRate
}

func (d *Driver) GetSize() (image.Point, error) {
	return image.Point{X: d.Width, Y: d.Height}, nil
}

// ReadFrame reads synchronously from the encoder pipe, so a slow consumer throttles the encoder
func (d *Driver) ReadFrame(ctx context.Context) (*frame.Frame, error) {
	d.locker.Lock()
	stdout, ring := d.stdout, d.ring
	d.locker.Unlock()

	if stdout == nil {
		return nil, video.ErrNotOpened
	}

	var raw []byte
	var err error
	if d.Format == video.MJPEG {
		raw, err = NextJPEG(stdout, MaxJPEGSize)
	} else {
		raw = make([]byte, d.rawFrameSize())
		_, err = io.ReadFull(stdout, raw)
	}
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &video.CaptureError{Err: fmt.Errorf("encoder output ended: %w", err)}
		}
		return nil, &video.CaptureError{Err: err}
	}

	f, err := ring.Get(ctx)
	if err != nil {
		return nil, err
	}

	err = video.Decode(f, d.Format, raw)
	if err != nil {
		f.Release()
		if video.IsTransient(err) {
			return nil, err
		}
		return nil, &video.CaptureError{Err: err}
	}

	return f, nil
}

// NextJPEG skips to the next start marker and returns everything up to and including the end marker
func NextJPEG(r *bufio.Reader, limit int) ([]byte, error) {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == StartMarker[0] && b == StartMarker[1] {
			break
		}
		prev = b
	}

	buf := append([]byte(nil), StartMarker...)
	for {
		chunk, err := r.ReadSlice(EndMarker[0])
		buf = append(buf, chunk...)
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
		if len(buf) > limit {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", limit)
		}
		if err != nil {
			continue
		}

		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if b == EndMarker[1] {
			return buf, nil
		}
		if b == EndMarker[0] {
			// 0xff padding, the marker byte may follow
			_ = r.UnreadByte()
			buf = buf[:len(buf)-1]
		}
	}
}

type Options struct {
	video.Options
	Format video.PixelFormat
}

func NewDriver(src config.ShellCommand, options *Options) *Driver {
	if options == nil {
		options = &Options{}
	}

	if options.FrameRate == 0 {
		options.FrameRate = 30
	}
	if options.Format == "" {
		options.Format = video.RGB24
	}

	return &Driver{
		locker: &sync.Mutex{},

		src:           src,
		setupCommands: options.SetupCommands,

		Width:     options.Width,
		Height:    options.Height,
		FrameRate: options.FrameRate,
		Buffers:   options.Buffers,
		Format:    options.Format,
	}
}
