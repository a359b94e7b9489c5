package services

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/lib"
)

// TestStoreLock_Exclusive verifies a held lock blocks a second acquisition
func TestStoreLock_Exclusive(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "store", "queue.json.lock")

	lock, err := AcquireStoreLock(lockPath, "queue", lib.DefaultLogger)
	require.NoError(t, err)

	_, err = AcquireStoreLock(lockPath, "queue", lib.DefaultLogger)
	require.Error(t, err)
	assert.True(t, lib.IsCategory(err, lib.CategoryState))

	require.NoError(t, lock.Release())

	// Released locks can be reacquired
	again, err := AcquireStoreLock(lockPath, "queue", lib.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

// TestStoreLock_ReleaseIsIdempotent verifies double release is harmless
func TestStoreLock_ReleaseIsIdempotent(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "queue.json.lock")

	lock, err := AcquireStoreLock(lockPath, "queue", lib.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

// TestIsStoreLocked verifies the non-destructive lock probe
func TestIsStoreLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "queue.json.lock")

	assert.False(t, IsStoreLocked(lockPath), "no lock file means unlocked")

	lock, err := AcquireStoreLock(lockPath, "queue", lib.DefaultLogger)
	require.NoError(t, err)
	assert.True(t, IsStoreLocked(lockPath))

	require.NoError(t, lock.Release())
	assert.False(t, IsStoreLocked(lockPath), "the probe must not leave the lock held")
}

// TestWithStoreLock verifies the lock is released whether or not the function
// errors
func TestWithStoreLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "queue.json.lock")

	ran := false
	err := WithStoreLock(lockPath, "queue", lib.DefaultLogger, func() error {
		ran = true
		assert.True(t, IsStoreLocked(lockPath), "the lock is held inside the function")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, IsStoreLocked(lockPath))

	wantErr := errors.New("store write failed")
	err = WithStoreLock(lockPath, "queue", lib.DefaultLogger, func() error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
	assert.False(t, IsStoreLocked(lockPath), "an error still releases the lock")
}
