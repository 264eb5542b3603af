package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"

	"github.com/gofrs/flock"
)

const lockFileName = "workspace.lock"

// FileLock keeps a second copydesk process from opening the same workspace.
type FileLock struct {
	mu          sync.Mutex
	lock        *flock.Flock
	workspaceID string
	since       time.Time
}

// FileLockConfig bounds acquisition: attempts every LockRetry, giving up
// after LockTimeout or LockMaxRetry attempts, whichever comes first.
type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	timeout, _ := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
	retry, _ := config.DurationOrDefault("", config.DefaultStoreLockRetry)
	return &FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: config.DefaultStoreLockMaxRetry,
	}
}

func (c *FileLockConfig) budget() time.Duration {
	budget := c.LockTimeout
	if c.LockMaxRetry > 0 && c.LockRetry > 0 {
		if byAttempts := time.Duration(c.LockMaxRetry) * c.LockRetry; budget <= 0 || byAttempts < budget {
			budget = byAttempts
		}
	}
	return budget
}

// NewFileLock takes the workspace lock under basePath, retrying while
// another process holds it.
func NewFileLock(workspaceID, basePath string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}
	path := filepath.Join(basePath, lockFileName)
	lock := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.budget())
	defer cancel()

	locked, err := lock.TryLockContext(ctx, cfg.LockRetry)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && !locked):
		return nil, copyErrors.WrapWithCategory(
			fmt.Errorf("workspace %s is held by another copydesk process (waited %v)", workspaceID, cfg.budget()),
			"acquire workspace lock", copyErrors.ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	slog.Info("Workspace locked", "workspace", workspaceID, "path", path)
	return &FileLock{lock: lock, workspaceID: workspaceID, since: time.Now()}, nil
}

// Unlock releases the lock. Calling it twice is harmless.
func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.lock == nil {
		return
	}
	if err := fl.lock.Unlock(); err != nil {
		slog.Error("Failed to release workspace lock", "workspace", fl.workspaceID, "error", err)
	} else {
		slog.Info("Workspace unlocked", "workspace", fl.workspaceID, "held_ms", time.Since(fl.since).Milliseconds())
	}
	fl.lock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.lock != nil
}
