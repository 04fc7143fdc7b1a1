package storageengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/pkg/config"
	"go.uber.org/zap"
)

func setupRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	reg := NewRegistry(dir, testOptions())
	t.Cleanup(func() { _ = reg.CloseAll() })
	return reg, dir
}

func TestRegistryLifecycle(t *testing.T) {
	reg, dir := setupRegistry(t)

	shop, err := reg.Create("shop")
	require.NoError(t, err)
	_, err = reg.Create("shop")
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseExists)

	again, err := reg.Open("shop")
	require.NoError(t, err)
	assert.Same(t, shop, again)

	_, err = reg.Open("audit")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "shop"}, reg.List())
	assert.FileExists(t, filepath.Join(dir, "shop.db"))

	got, err := reg.Get("audit")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audit.db"), got.Path())

	require.NoError(t, reg.Close("audit"))
	_, err = reg.Get("audit")
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseNotOpen)
	assert.ErrorIs(t, reg.Close("audit"), flushmanager.ErrDatabaseNotOpen)

	// A closed database cannot be created again while its file exists.
	_, err = reg.Create("audit")
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseExists)

	require.NoError(t, reg.Drop("shop"))
	_, err = os.Stat(filepath.Join(dir, "shop.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, reg.List())

	_, err = reg.Create("shop")
	require.NoError(t, err)
	require.NoError(t, reg.CloseAll())
	assert.Empty(t, reg.List())
}

func TestRegistryRejectsBadNames(t *testing.T) {
	reg, _ := setupRegistry(t)
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := reg.Open(name)
		assert.Error(t, err, name)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BufferPool.Size = 16
	cfg.BufferPool.Replacer = "clock"
	cfg.Index.LeafMaxSize = 5
	cfg.Backup.BytesPerSecond = 1 << 20

	opts := OptionsFromConfig(cfg, nil, zap.NewNop())
	assert.Equal(t, 16, opts.PoolSize)
	assert.Equal(t, "clock", string(opts.Replacer))
	assert.Equal(t, 5, opts.Index.LeafMaxSize)
	assert.Equal(t, int64(1<<20), opts.BackupBytesPerSecond)

	reg := NewRegistry(t.TempDir(), opts)
	db, err := reg.Open("cfg")
	require.NoError(t, err)
	assert.Equal(t, 16, db.BufferPool().PoolSize())
	require.NoError(t, reg.CloseAll())
}
