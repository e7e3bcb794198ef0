package notify

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceDelay batches filesystem event bursts (an export sync touches many
// files) into one refresh.
const debounceDelay = 2 * time.Second

// RefreshFunc runs one refresh pass. Concurrent invocations are expected to
// coalesce downstream.
type RefreshFunc func(ctx context.Context) error

// Watcher triggers refreshes when the line-oriented export tree changes. A
// filesystem watcher gives fast reaction; an interval poll backstops it for
// filesystems where change notification is unreliable (network mounts).
type Watcher struct {
	dir      string
	interval time.Duration
	refresh  RefreshFunc
	log      *logrus.Entry

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher over dir. interval <= 0 disables the poll.
func NewWatcher(dir string, interval time.Duration, refresh RefreshFunc) *Watcher {
	return &Watcher{
		dir:      dir,
		interval: interval,
		refresh:  refresh,
		log:      logrus.WithField("component", "watcher"),
		done:     make(chan struct{}),
	}
}

// Start begins watching. A missing or unwatchable directory degrades to
// poll-only operation rather than failing. Call Stop to clean up.
func (w *Watcher) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	if _, err := os.Stat(w.dir); err == nil {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err := fw.Add(w.dir); err != nil {
				_ = fw.Close()
				w.log.WithError(err).Warn("filesystem watch unavailable, polling only")
			} else {
				w.watcher = fw
			}
		}
	} else {
		w.log.WithField("dir", w.dir).Warn("source directory missing, polling only")
	}

	go w.loop(ctx)
	w.log.WithField("dir", w.dir).Info("watching evidence source tree")
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var events chan fsnotify.Event
	var errors chan error
	if w.watcher != nil {
		events = w.watcher.Events
		errors = w.watcher.Errors
	}

	var poll <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		poll = ticker.C
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending {
				if !debounce.Stop() {
					<-debounce.C
				}
			}
			debounce.Reset(debounceDelay)
			pending = true

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			w.log.WithError(err).Warn("watcher error")

		case <-debounce.C:
			pending = false
			w.run(ctx)

		case <-poll:
			w.run(ctx)
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	if err := w.refresh(ctx); err != nil {
		w.log.WithError(err).Error("refresh failed")
	}
}
