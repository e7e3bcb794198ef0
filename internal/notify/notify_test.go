package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(Event{Type: EventRefreshComplete, ChangedFiles: 3})

	evt := <-a
	assert.Equal(t, EventRefreshComplete, evt.Type)
	assert.Equal(t, 3, evt.ChangedFiles)
	assert.Positive(t, evt.Time)

	evt = <-b
	assert.Equal(t, EventRefreshComplete, evt.Type)

	cancelA()
	_, open := <-a
	assert.False(t, open)
	cancelA() // second cancel is a no-op
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 50; i++ {
		hub.Publish(Event{Type: EventIndexComplete})
	}
	// The subscriber buffer overflowed silently; draining yields what fit.
	assert.Len(t, ch, 8)
}

func TestWatcherPollTriggersRefresh(t *testing.T) {
	var calls atomic.Int32
	w := NewWatcher(t.TempDir(), 20*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("poll never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcherReactsToFileChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := NewWatcher(dir, 0, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev-a_chats.md"), []byte("- line\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("file change never triggered a refresh")
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func TestWatcherMissingDirDegradesToPolling(t *testing.T) {
	var calls atomic.Int32
	w := NewWatcher(filepath.Join(t.TempDir(), "does-not-exist"), 20*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("poll fallback never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
