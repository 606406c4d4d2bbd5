package helper

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/allape/hypercap/grabber/frame"
	"github.com/disintegration/imaging"
)

var ErrNoPath = errors.New("screenshot path is empty")

// SaveScreenshot encodes the frame by the extension of path, png when there is none
func SaveScreenshot(f *frame.Frame, path string) error {
	if path == "" {
		return ErrNoPath
	}
	if err := f.Validate(); err != nil {
		return err
	}

	if filepath.Ext(path) == "" {
		path += ".png"
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return imaging.Save(f.ToImage(), path)
}
