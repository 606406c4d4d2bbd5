package factory

import (
	"fmt"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/video"
	"github.com/allape/hypercap/grabber/video/device"
	"github.com/allape/hypercap/grabber/video/dummy"
	"github.com/allape/hypercap/grabber/video/screen"
	"github.com/allape/hypercap/grabber/video/shell"
)

var l = gogger.New("factory")

func SourceFromConfig(conf config.Config) (vs video.Source, err error) {
	c := conf.Capture

	vos := video.Options{
		Width:         c.Width,
		Height:        c.Height,
		FrameRate:     c.FrameRate,
		Buffers:       c.Buffers,
		SetupCommands: c.SetupCommands,
	}

	switch c.Type {
	case config.CaptureDevice:
		if c.Src.Empty() {
			return nil, fmt.Errorf("capture source is empty")
		}
		l.Info().Println("capture from device:", c.Src.First())
		vs = device.NewDevice(c.Src.First(), &device.Options{
			Options:  vos,
			Input:    c.Input,
			Standard: c.Standard,
		})
	case config.CaptureScreen:
		l.Info().Println("capture from screen:", c.Src.String())
		vs, err = screen.NewScreen(c.Src.First(), &screen.Options{
			Options: vos,
		})
	case config.CaptureShell:
		src := config.ShellCommand(c.Src)
		if src.Empty() {
			return nil, fmt.Errorf("capture source is empty")
		}
		l.Info().Println("capture from command:", src)
		vs = shell.NewDriver(src, &shell.Options{
			Options: vos,
			Format:  video.PixelFormat(c.Format),
		})
	case config.CaptureDummy:
		l.Warn().Println("capture from dummy source, no real video")
		vs = dummy.NewSource(c.Src.First(), &dummy.Options{
			Options: vos,
		})
	default:
		return nil, fmt.Errorf("unknown capture driver: %s", c.Type)
	}

	return vs, err
}
