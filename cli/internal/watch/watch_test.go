package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_RunsOnMatchingChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w, err := NewWatcher(dir, "*.sql", func() error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_init.sql"), []byte("SELECT 1;"), 0o644))

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), "*", func() error { return nil }, nil)
	assert.Error(t, err)
}
