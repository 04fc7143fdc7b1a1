//go:build unix

package sys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockFileIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.db")
	first, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer first.Close()
	second, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, LockFile(first))
	// flock locks belong to the open file description, so a second
	// descriptor on the same file must be refused.
	require.ErrorIs(t, LockFile(second), ErrWouldBlock)

	require.NoError(t, UnlockFile(first))
	require.NoError(t, LockFile(second))
	require.NoError(t, UnlockFile(second))
}

func TestGetSysPageSize(t *testing.T) {
	require.Greater(t, GetSysPageSize(), 0)
}
