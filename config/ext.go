package config

import (
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Src is a device path, a display index or a command line, depending on the capture driver.
// Example: src = ["/dev/video0"] or src = ["ffmpeg", "-i", "default", "-f", "rawvideo", "-"]
type Src []string

func (s Src) Empty() bool {
	return len(s) == 0 || (len(s) == 1 && s[0] == "")
}

func (s Src) String() string {
	return strings.Join(s, " ")
}

func (s Src) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// ShellCommand is an argv list, the first element is the executable
type ShellCommand []string

func NewShellCommand(jsonArray string) ShellCommand {
	var cmd ShellCommand
	_ = json.Unmarshal([]byte(jsonArray), &cmd)
	return cmd
}

func (s ShellCommand) String() string {
	return strings.Join(s, " ")
}

func (s ShellCommand) Empty() bool {
	return len(s) == 0
}

func (s ShellCommand) ToCommand() (*exec.Cmd, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if s[0] == "" {
		return nil, errors.New("command executable is empty")
	}

	return exec.Command(s[0], s[1:]...), nil
}

// Duration reads "1s", "500ms" style strings
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
