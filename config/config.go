package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/envar"
	"github.com/allape/hypercap/grabber/geometry"
	"github.com/pelletier/go-toml/v2"
)

var l = gogger.New("config")

const (
	DefaultConfigPath = "hypercap.toml"
	DefaultDevice     = "/dev/video0"
)

type CaptureDriverType string

const (
	CaptureDevice CaptureDriverType = "device"
	CaptureScreen CaptureDriverType = "screen"
	CaptureShell  CaptureDriverType = "shell"
	CaptureDummy  CaptureDriverType = "dummy"
)

// VideoStandard is applied to analog capture devices before streaming starts
type VideoStandard string

const (
	NoChange VideoStandard = "no-change"
	PAL      VideoStandard = "PAL"
	NTSC     VideoStandard = "NTSC"
	SECAM    VideoStandard = "SECAM"
)

func (s VideoStandard) Normalize() (VideoStandard, error) {
	switch strings.ToUpper(string(s)) {
	case "", "NO-CHANGE", "NO_CHANGE":
		return NoChange, nil
	case "PAL":
		return PAL, nil
	case "NTSC":
		return NTSC, nil
	case "SECAM":
		return SECAM, nil
	}
	return NoChange, fmt.Errorf("unknown video standard: %s (valid values are PAL, NTSC, SECAM)", s)
}

type Capture struct {
	Type          CaptureDriverType `toml:"type"`
	Src           Src               `toml:"src"`
	Input         int               `toml:"input"`
	Standard      VideoStandard     `toml:"standard"`
	Width         int               `toml:"width"`
	Height        int               `toml:"height"`
	FrameRate     float64           `toml:"frame_rate"`
	Buffers       int               `toml:"buffers"`
	Format        string            `toml:"format"`
	SetupCommands []ShellCommand    `toml:"setup_commands"`

	// CropWidth is removed from both the left and the right side unless CropLeft or CropRight is set
	CropWidth  int  `toml:"crop_width"`
	CropHeight int  `toml:"crop_height"`
	CropLeft   *int `toml:"crop_left"`
	CropRight  *int `toml:"crop_right"`
	CropTop    *int `toml:"crop_top"`
	CropBottom *int `toml:"crop_bottom"`

	SizeDecimator  int             `toml:"size_decimator"`
	FrameDecimator int             `toml:"frame_decimator"`
	Stereo         geometry.Stereo `toml:"stereo"`
	Eye            geometry.Eye    `toml:"eye"`

	// SignalThreshold below 0 disables signal detection, otherwise it is a fraction of full brightness
	SignalThreshold  float64 `toml:"signal_threshold"`
	MaxCaptureErrors int     `toml:"max_capture_errors"`

	Screenshot     bool   `toml:"screenshot"`
	ScreenshotPath string `toml:"screenshot_path"`
}

type Delivery struct {
	Address   string   `toml:"address"`
	Priority  int      `toml:"priority"`
	SkipReply bool     `toml:"skip_reply"`
	Timeout   Duration `toml:"timeout"`
	Duration  Duration `toml:"duration"`
}

type Monitor struct {
	Addr string `toml:"addr"`
	Path string `toml:"path"`
	Cors bool   `toml:"cors"`
}

type Config struct {
	Capture  Capture  `toml:"capture"`
	Delivery Delivery `toml:"delivery"`
	Monitor  Monitor  `toml:"monitor"`
}

func Default() Config {
	return Config{
		Capture: Capture{
			Type:             CaptureDevice,
			Input:            -1,
			Standard:         NoChange,
			FrameRate:        30,
			Buffers:          4,
			Format:           "rgb24",
			SizeDecimator:    1,
			FrameDecimator:   1,
			Stereo:           geometry.StereoNone,
			Eye:              geometry.LeftEye,
			SignalThreshold:  -1,
			MaxCaptureErrors: 10,
			ScreenshotPath:   "screenshot.png",
		},
		Delivery: Delivery{
			Address:  "127.0.0.1:19445",
			Priority: 800,
			Timeout:  Duration(3 * time.Second),
			Duration: Duration(time.Second),
		},
		Monitor: Monitor{
			Path: "/ws",
		},
	}
}

// Geometry resolves the crop fallbacks and clamps every value into its valid range
func (c Capture) Geometry() geometry.Transform {
	pick := func(specific *int, combined int) int {
		if specific != nil {
			return *specific
		}
		return combined
	}

	return geometry.Transform{
		Crop: geometry.Crop{
			Left:   pick(c.CropLeft, c.CropWidth),
			Right:  pick(c.CropRight, c.CropWidth),
			Top:    pick(c.CropTop, c.CropHeight),
			Bottom: pick(c.CropBottom, c.CropHeight),
		},
		Decimation: c.SizeDecimator,
		Stereo:     c.Stereo,
		Eye:        c.Eye,
	}.Normalize()
}

func (c Capture) FrameDecimation() int {
	return max(1, c.FrameDecimator)
}

// Check catches contradictions that do not depend on the negotiated frame size
func (c Config) Check() error {
	switch c.Capture.Type {
	case CaptureDevice, CaptureScreen, CaptureShell, CaptureDummy:
	default:
		return fmt.Errorf("unknown capture driver: %s", c.Capture.Type)
	}

	if _, err := c.Capture.Standard.Normalize(); err != nil {
		return err
	}

	g := c.Capture.Geometry()
	switch g.Stereo {
	case geometry.StereoNone, geometry.StereoSideBySide, geometry.StereoTopAndBottom:
	default:
		return fmt.Errorf("unknown stereo mode: %s", g.Stereo)
	}
	switch g.Eye {
	case geometry.LeftEye, geometry.RightEye:
	default:
		return fmt.Errorf("unknown eye: %s", g.Eye)
	}

	if c.Capture.SignalThreshold > 1 {
		return fmt.Errorf("signal threshold should be between 0.0 and 1.0, got %f", c.Capture.SignalThreshold)
	}

	// a fixed size is known up front, so the geometry can be rejected before opening anything
	if c.Capture.Width > 0 && c.Capture.Height > 0 {
		if err := g.Validate(c.Capture.Width, c.Capture.Height); err != nil {
			return err
		}
	}

	if !c.Capture.Screenshot && c.Delivery.Address == "" {
		return fmt.Errorf("delivery address is empty")
	}

	return nil
}

func Path() string {
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		return os.Args[1]
	}
	return envar.Getenv(envar.HypercapConfig, DefaultConfigPath)
}

func Load(configFile string) (Config, error) {
	config := Default()

	configData, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}

	err = toml.Unmarshal(configData, &config)
	if err != nil {
		return config, fmt.Errorf("parse %s: %w", configFile, err)
	}

	if config.Capture.Type == CaptureDevice && config.Capture.Src.Empty() {
		config.Capture.Src = Src{DefaultDevice}
	}

	return config, config.Check()
}

func GetConfig() (Config, error) {
	configFile := Path()

	l.Info().Println("reading config file:", configFile)

	config, err := Load(configFile)
	if err != nil {
		return config, err
	}

	l.Verbose().Printf("use config: %+v", config)

	return config, nil
}
