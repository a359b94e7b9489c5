//go:build unix

package services

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/veridoc/veridoc/internal/lib"
)

// AcquireStoreLock attempts to acquire an exclusive lock on a store file
// (Unix implementation). Returns an error if the lock is already held by
// another process. The lock is released when the StoreLock is released or
// the process exits.
func AcquireStoreLock(lockPath string, name string, logger *lib.Logger) (*StoreLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// flock() is advisory - cooperating processes must check the lock
	err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = lockFile.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, lib.ErrStoreLocked(lockPath)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lock := &StoreLock{
		name:     name,
		lockFile: lockFile,
		lockPath: lockPath,
		logger:   logger,
	}

	if err := lock.writeLockInfo(); err != nil {
		logger.Warn("Failed to write lock info", "store", name, "error", err)
	}

	logger.Debug("Acquired store lock", "store", name, "pid", os.Getpid())

	return lock, nil
}

// Release releases the store lock (Unix implementation)
func (sl *StoreLock) Release() error {
	if sl.lockFile == nil {
		return nil
	}

	err := syscall.Flock(int(sl.lockFile.Fd()), syscall.LOCK_UN)
	if err != nil {
		sl.logger.Warn("Failed to release flock", "store", sl.name, "error", err)
	}

	if err := sl.lockFile.Close(); err != nil {
		sl.logger.Warn("Failed to close lock file", "store", sl.name, "error", err)
		return err
	}

	sl.logger.Debug("Released store lock", "store", sl.name, "pid", os.Getpid())
	sl.lockFile = nil

	return nil
}

// IsStoreLocked checks whether a store file is locked by any process (Unix
// implementation). Non-destructive: the check never leaves the lock held.
func IsStoreLocked(lockPath string) bool {
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return false
	}

	lockFile, err := os.Open(lockPath)
	if err != nil {
		return false
	}
	defer func() {
		_ = lockFile.Close()
	}()

	err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		return err == syscall.EWOULDBLOCK
	}

	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	return false
}
