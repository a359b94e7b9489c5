//go:build windows

package services

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"

	"github.com/veridoc/veridoc/internal/lib"
)

var (
	kernel32         = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = kernel32.NewProc("LockFileEx")
	procUnlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const (
	LOCKFILE_FAIL_IMMEDIATELY = 0x00000001
	LOCKFILE_EXCLUSIVE_LOCK   = 0x00000002
	ERROR_LOCK_VIOLATION      = syscall.Errno(33) // File is locked by another process
)

// AcquireStoreLock attempts to acquire an exclusive lock on a store file
// (Windows implementation). Returns an error if the lock is already held by
// another process.
func AcquireStoreLock(lockPath string, name string, logger *lib.Logger) (*StoreLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	handle := syscall.Handle(lockFile.Fd())
	overlapped := syscall.Overlapped{}

	// LockFileEx with FAIL_IMMEDIATELY flag for non-blocking behavior
	r1, _, err := procLockFileEx.Call(
		uintptr(handle),
		uintptr(LOCKFILE_EXCLUSIVE_LOCK|LOCKFILE_FAIL_IMMEDIATELY),
		0,
		uintptr(1),
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)

	if r1 == 0 {
		_ = lockFile.Close()
		if err == ERROR_LOCK_VIOLATION {
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

// Release releases the store lock (Windows implementation)
func (sl *StoreLock) Release() error {
	if sl.lockFile == nil {
		return nil
	}

	handle := syscall.Handle(sl.lockFile.Fd())
	overlapped := syscall.Overlapped{}

	_, _, err := procUnlockFileEx.Call(
		uintptr(handle),
		0,
		uintptr(1),
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)

	if err != syscall.Errno(0) {
		sl.logger.Warn("Failed to release lock", "store", sl.name, "error", err)
	}

	if err := sl.lockFile.Close(); err != nil {
		sl.logger.Warn("Failed to close lock file", "store", sl.name, "error", err)
		return err
	}

	sl.logger.Debug("Released store lock", "store", sl.name, "pid", os.Getpid())
	sl.lockFile = nil

	return nil
}

// IsStoreLocked checks whether a store file is locked by any process
// (Windows implementation). Non-destructive: the check never leaves the
// lock held.
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

	handle := syscall.Handle(lockFile.Fd())
	overlapped := syscall.Overlapped{}

	r1, _, err := procLockFileEx.Call(
		uintptr(handle),
		uintptr(LOCKFILE_EXCLUSIVE_LOCK|LOCKFILE_FAIL_IMMEDIATELY),
		0,
		uintptr(1),
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)

	if r1 == 0 {
		if err == ERROR_LOCK_VIOLATION {
			return true
		}
		return false
	}

	procUnlockFileEx.Call(
		uintptr(handle),
		0,
		uintptr(1),
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	return false
}
