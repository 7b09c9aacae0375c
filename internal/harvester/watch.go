package harvester

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const defaultWatchDebounce = 250 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Debounce time.Duration
	// Match filters event names; nil accepts every event.
	Match  func(name string) bool
	Logger *slog.Logger
}

// Watch calls onChange after a quiet period following changes under paths,
// until ctx is cancelled. Paths that cannot be watched are logged and skipped.
func Watch(ctx context.Context, paths []string, opts WatchOptions, onChange func(context.Context)) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = defaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	added := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			logger.Error("harvester: watch add", "path", p, "err", err)
			continue
		}
		added++
	}
	if added == 0 {
		return errors.New("nothing to watch")
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if opts.Match != nil && !opts.Match(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(delay)
		case <-debounce.C:
			onChange(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("harvester: watch error", "err", err)
		}
	}
}
