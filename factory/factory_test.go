package factory

import (
	"testing"
	"time"

	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/grabber/video/device"
	"github.com/allape/hypercap/grabber/video/dummy"
	"github.com/allape/hypercap/grabber/video/screen"
	"github.com/allape/hypercap/grabber/video/shell"
)

func TestSourceFromConfig(t *testing.T) {
	conf := config.Default()

	conf.Capture.Type = config.CaptureDevice
	conf.Capture.Src = config.Src{"/dev/video2"}
	conf.Capture.Standard = config.PAL
	vs, err := SourceFromConfig(conf)
	if err != nil {
		t.Fatal(err)
	}
	dev, ok := vs.(*device.Device)
	if !ok {
		t.Fatalf("Expected *device.Device, got %T", vs)
	}
	if dev.Src != "/dev/video2" || len(dev.SetupCommands) != 1 {
		t.Fatalf("unexpected device: %s %v", dev.Src, dev.SetupCommands)
	}

	conf.Capture.Type = config.CaptureScreen
	conf.Capture.Src = config.Src{"1"}
	vs, err = SourceFromConfig(conf)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := vs.(*screen.Screen); !ok || s.Display != 1 {
		t.Fatalf("Expected screen on display 1, got %T", vs)
	}

	conf.Capture.Type = config.CaptureShell
	conf.Capture.Src = config.Src{"ffmpeg", "-i", "/dev/video0", "-"}
	vs, err = SourceFromConfig(conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := vs.(*shell.Driver); !ok {
		t.Fatalf("Expected *shell.Driver, got %T", vs)
	}

	conf.Capture.Type = config.CaptureDummy
	conf.Capture.Src = nil
	vs, err = SourceFromConfig(conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := vs.(*dummy.Source); !ok {
		t.Fatalf("Expected *dummy.Source, got %T", vs)
	}
}

func TestSourceFromConfigErrors(t *testing.T) {
	conf := config.Default()

	conf.Capture.Type = "webcam"
	if _, err := SourceFromConfig(conf); err == nil {
		t.Fatal("Expected error for unknown driver")
	}

	conf.Capture.Type = config.CaptureShell
	conf.Capture.Src = nil
	if _, err := SourceFromConfig(conf); err == nil {
		t.Fatal("Expected error for empty command")
	}

	conf.Capture.Type = config.CaptureScreen
	conf.Capture.Src = config.Src{"primary"}
	if _, err := SourceFromConfig(conf); err == nil {
		t.Fatal("Expected error for a non numeric display")
	}
}

func TestTargetFromConfig(t *testing.T) {
	conf := config.Default()
	conf.Delivery.Priority = 150
	conf.Delivery.SkipReply = true

	target := TargetFromConfig(conf)
	if target.Address != "127.0.0.1:19445" || target.Priority != 150 || !target.SkipReply {
		t.Fatalf("unexpected target: %+v", target)
	}
	if target.Timeout != 3*time.Second || target.Duration != time.Second {
		t.Fatalf("unexpected timeouts: %+v", target)
	}
}
