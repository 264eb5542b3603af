package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortLockConfig(timeout time.Duration) *FileLockConfig {
	retry := 10 * time.Millisecond
	maxRetry := int(timeout / retry)
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &FileLockConfig{LockTimeout: timeout, LockRetry: retry, LockMaxRetry: maxRetry}
}

func TestFileLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock("ws", dir, nil)
	require.NoError(t, err)
	assert.True(t, lock.IsLocked())

	lock.Unlock()
	assert.False(t, lock.IsLocked())

	lock.Unlock()
	assert.False(t, lock.IsLocked())
}

func TestFileLockSecondHolderConflicts(t *testing.T) {
	dir := t.TempDir()
	cfg := shortLockConfig(100 * time.Millisecond)

	first, err := NewFileLock("ws", dir, cfg)
	require.NoError(t, err)
	defer first.Unlock()

	start := time.Now()
	second, err := NewFileLock("ws", dir, cfg)
	if second != nil {
		second.Unlock()
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, copyErrors.ErrConflict))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	raw := flock.New(filepath.Join(dir, "workspace.lock"))
	locked, err := raw.TryLock()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestFileLockConfigBudget(t *testing.T) {
	cfg := &FileLockConfig{LockTimeout: time.Second, LockRetry: 10 * time.Millisecond, LockMaxRetry: 5}
	assert.Equal(t, 50*time.Millisecond, cfg.budget())

	cfg = &FileLockConfig{LockTimeout: 20 * time.Millisecond, LockRetry: 10 * time.Millisecond, LockMaxRetry: 100}
	assert.Equal(t, 20*time.Millisecond, cfg.budget())
}

func TestFileLockReacquireAfterUnlock(t *testing.T) {
	dir := t.TempDir()
	cfg := shortLockConfig(100 * time.Millisecond)

	first, err := NewFileLock("ws", dir, cfg)
	require.NoError(t, err)
	first.Unlock()

	second, err := NewFileLock("ws", dir, cfg)
	require.NoError(t, err)
	defer second.Unlock()
	assert.True(t, second.IsLocked())
}
