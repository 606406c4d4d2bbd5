package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch calls onChange with the freshly loaded config every time configFile is rewritten.
// Files that fail to load are logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, configFile string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	// editors often replace the file, so watch the directory instead
	target := filepath.Clean(configFile)
	err = watcher.Add(filepath.Dir(target))
	if err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			conf, err := Load(configFile)
			if err != nil {
				l.Warn().Println("ignore reloaded config:", err)
				continue
			}
			l.Info().Println("config reloaded:", configFile)
			onChange(conf)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.Error().Println("watch config:", err)
		}
	}
}
