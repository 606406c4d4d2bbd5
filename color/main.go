package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/factory"
	"github.com/allape/hypercap/grabber/delivery"
)

// reads one command per line from stdin:
//   #ff8800, 0xff8800, 255,136,0   solid color on the configured priority
//   clear                          clear the configured priority
//   clearall                       clear every priority

var l = gogger.New("color")

const (
	ActionColor    = "color"
	ActionClear    = "clear"
	ActionClearAll = "clearall"
)

var ErrInvalidColor = errors.New("invalid color")

func ParseColor(text string) (uint32, error) {
	text = strings.TrimSpace(text)

	if parts := strings.Split(text, ","); len(parts) == 3 {
		var rgb uint32
		for _, part := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
			if err != nil {
				return 0, fmt.Errorf("%w: %s", ErrInvalidColor, text)
			}
			rgb = rgb<<8 | uint32(v)
		}
		return rgb, nil
	}

	hex := strings.TrimPrefix(text, "#")
	if hex == text {
		hex = strings.TrimPrefix(strings.ToLower(text), "0x")
	}
	if len(hex) != 6 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidColor, text)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidColor, text)
	}
	return uint32(v), nil
}

// ParseLine returns the action of a line and the color for ActionColor
func ParseLine(line string) (string, uint32, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case ActionClear:
		return ActionClear, 0, nil
	case ActionClearAll:
		return ActionClearAll, 0, nil
	}

	rgb, err := ParseColor(line)
	if err != nil {
		return "", 0, err
	}
	return ActionColor, rgb, nil
}

func execute(ctx context.Context, client *delivery.Client, priority int32, line string) error {
	action, rgb, err := ParseLine(line)
	if err != nil {
		return err
	}

	switch action {
	case ActionClear:
		return client.Clear(ctx, priority)
	case ActionClearAll:
		return client.ClearAll(ctx)
	default:
		return client.Color(ctx, rgb, priority, 0)
	}
}

func main() {
	if err := run(); err != nil {
		l.Error().Println(err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := factory.ClientFromConfig(conf)
	defer func() {
		_ = client.Close()
	}()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			l.Error().Println("read stdin:", err)
		}
	}()

	l.Info().Println("awaiting colors")

	for {
		select {
		case <-ctx.Done():
			l.Info().Println("exiting")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := execute(ctx, client, client.Target.Priority, line); err != nil {
				l.Warn().Println(err)
				continue
			}
			l.Info().Println(">", line)
		}
	}
}
