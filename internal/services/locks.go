package services

import (
	"fmt"
	"os"
	"time"

	"github.com/veridoc/veridoc/internal/lib"
)

// StoreLock is an advisory file lock guarding a persistent store file.
// Prevents two processes from rewriting the queue or a case record at once.
type StoreLock struct {
	name     string
	lockFile *os.File
	lockPath string
	logger   *lib.Logger
}

// WithStoreLock executes a function while holding the lock for a store file.
// The lock is released when the function returns, whether or not it errored.
func WithStoreLock(lockPath string, name string, logger *lib.Logger, fn func() error) error {
	lock, err := AcquireStoreLock(lockPath, name, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("Failed to release store lock", "store", name, "error", err)
		}
	}()

	return fn()
}

// writeLockInfo writes debug information to the lock file
func (sl *StoreLock) writeLockInfo() error {
	lockInfo := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	_ = sl.lockFile.Truncate(0)
	_, _ = sl.lockFile.Seek(0, 0)
	_, _ = sl.lockFile.WriteString(lockInfo)
	return sl.lockFile.Sync()
}
