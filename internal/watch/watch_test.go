package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startWatcher runs w in the background and returns a stop func that waits
// for Run to return.
func startWatcher(t *testing.T, w *Watcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watch a moment to register before the test writes.
	time.Sleep(100 * time.Millisecond)

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actors.tsv")
	require.NoError(t, os.WriteFile(path, []byte("a\tb\tc\n"), 0o644))

	var calls atomic.Int32
	w, err := New(path, 300*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	stop := startWatcher(t, w)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a\tb\tc\nd\te\tf\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	stop()

	assert.Equal(t, int32(1), calls.Load())
	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.GreaterOrEqual(t, stats.Events, 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actors.tsv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var calls atomic.Int32
	w, err := New(path, 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	stop := startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.tsv"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	stop()

	assert.Zero(t, calls.Load())
	assert.Zero(t, w.Stats().Events)
}

func TestWatcher_FailuresAreCounted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actors.tsv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := New(path, 20*time.Millisecond, func(context.Context) error {
		return errors.New("boom")
	}, nil)
	require.NoError(t, err)
	stop := startWatcher(t, w)

	require.NoError(t, os.WriteFile(path, []byte("x\ty\tz\n"), 0o644))
	require.Eventually(t, func() bool { return w.Stats().Failures >= 1 }, 5*time.Second, 20*time.Millisecond)
	stop()
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "gone", "actors.tsv"), 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}

func TestNew_RequiresCallback(t *testing.T) {
	_, err := New("actors.tsv", 0, nil, nil)
	assert.Error(t, err)
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, tickInterval(time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, tickInterval(200*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, tickInterval(time.Second))
}
