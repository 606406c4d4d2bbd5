package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/config"
	"github.com/allape/hypercap/envar"
	"github.com/allape/hypercap/factory"
	"github.com/allape/hypercap/grabber/dispatcher"
	"github.com/allape/hypercap/grabber/handler"
	"github.com/allape/hypercap/monitor"
)

var l = gogger.New("main")

func usage() {
	fmt.Printf("Usage: %s [config.toml]\n", os.Args[0])
	fmt.Printf("Captures video frames and streams them to a hyperion server, config path defaults to $%s or %s\n",
		envar.HypercapConfig, config.DefaultConfigPath)
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		usage()
		return
	}

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

	source, err := factory.SourceFromConfig(conf)
	if err != nil {
		return fmt.Errorf("source from config: %w", err)
	}

	d := dispatcher.New(source, dispatcher.Options{
		Geometry:         conf.Capture.Geometry(),
		FrameDecimation:  conf.Capture.FrameDecimation(),
		MaxCaptureErrors: conf.Capture.MaxCaptureErrors,
	})

	if conf.Capture.Screenshot {
		d.SetCallback(handler.Screenshot(conf.Capture.ScreenshotPath))
		if err := d.Start(); err != nil {
			return fmt.Errorf("start capture: %w", err)
		}
		return d.Capture(ctx, 1)
	}

	client := factory.ClientFromConfig(conf)
	defer func() {
		_ = client.Close()
	}()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	h := handler.NewImageHandler(client, client.Target.Priority, conf.Capture.SignalThreshold)
	d.SetCallback(h.Handle)

	if err := d.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	go watchConfig(ctx, d)

	if conf.Monitor.Addr != "" {
		m := monitor.New(func() monitor.Status {
			status := monitor.Status{
				State:    d.State().String(),
				Capture:  d.Stats(),
				Delivery: client.Stats(),
				Handler:  h.Stats(),
			}
			if width, height, err := d.OutputSize(); err == nil {
				status.Output = fmt.Sprintf("%dx%d", width, height)
			}
			return status
		}, monitor.Options{
			Path: conf.Monitor.Path,
			Cors: conf.Monitor.Cors,
		})

		go func() {
			if err := m.ListenAndServe(ctx, conf.Monitor.Addr); err != nil {
				l.Error().Println("monitor:", err)
			}
		}()
	}

	l.Info().Println("started")

	err = d.Capture(ctx, 0)
	if err != nil {
		return err
	}

	l.Info().Println("exiting")

	return nil
}

// watchConfig swaps geometry and frame decimation of the running dispatcher when the file changes
func watchConfig(ctx context.Context, d *dispatcher.Dispatcher) {
	err := config.Watch(ctx, config.Path(), func(conf config.Config) {
		if err := d.Reconfigure(conf.Capture.Geometry(), conf.Capture.FrameDecimation()); err != nil {
			l.Warn().Println("ignore reloaded geometry:", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		l.Warn().Println("watch config:", err)
	}
}
