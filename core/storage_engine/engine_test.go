package storageengine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minisql/core/indexmanager"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	tableheap "github.com/sushant-115/minisql/core/storage_engine/table_heap"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	"go.uber.org/zap"
)

func accountSchema() *record.Schema {
	return record.NewSchema(
		record.NewColumn("id", record.TypeInt, 0, false, true),
		record.NewCharColumn("owner", 32, 1, false, false),
		record.NewColumn("balance", record.TypeFloat, 2, true, false),
	)
}

func accountKeySchema() *record.Schema {
	return record.NewSchema(record.NewColumn("id", record.TypeInt, 0, false, true))
}

func accountRow(i int) *record.Row {
	return record.NewRow(
		record.NewIntField(int32(i)),
		record.NewCharField(fmt.Sprintf("owner-%03d", i)),
		record.NewFloatField(float32(i)*1.5),
	)
}

func testOptions() Options {
	return Options{
		PoolSize: 32,
		Replacer: "clock",
		Index:    indexmanager.BPlusTreeIndexOptions{LeafMaxSize: 8, InternalMaxSize: 8},
		Logger:   zap.NewNop(),
	}
}

func setupEngine(t *testing.T) (*DBStorageEngine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.db")
	db, err := Open(path, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

// loadAccounts inserts n rows and indexes them by id.
func loadAccounts(t *testing.T, db *DBStorageEngine, n int) (*tableheap.TableHeap, *indexmanager.BPlusTreeIndex) {
	t.Helper()
	heap, err := db.CreateTableHeap(accountSchema())
	require.NoError(t, err)
	idx, err := db.OpenIndex(1, "pk_accounts", accountKeySchema())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < n; i++ {
		row := accountRow(i)
		require.NoError(t, heap.InsertTuple(row, nil))
		key, err := row.Project([]int{0})
		require.NoError(t, err)
		require.NoError(t, idx.InsertEntry(ctx, key, row.RowID(), nil))
	}
	return heap, idx
}

func lookup(t *testing.T, heap *tableheap.TableHeap, idx *indexmanager.BPlusTreeIndex, id int) *record.Row {
	t.Helper()
	rids, err := idx.ScanKey(context.Background(), record.NewRow(record.NewIntField(int32(id))), indexmanager.OpEqual, nil)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	row, err := heap.GetTuple(rids[0], nil)
	require.NoError(t, err)
	return row
}

func TestOpenFormatsNewDatabase(t *testing.T) {
	db, _ := setupEngine(t)
	// Only the index roots page exists.
	assert.Equal(t, uint32(1), db.DiskManager().NumAllocatedPages())
	free, err := db.DiskManager().IsPageFree(pagemanager.IndexRootsPageID)
	require.NoError(t, err)
	assert.False(t, free)
	assert.Equal(t, 32, db.BufferPool().PoolSize())
}

func TestEngineReopenKeepsTablesAndIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.db")
	db, err := Open(path, testOptions())
	require.NoError(t, err)
	heap, idx := loadAccounts(t, db, 300)
	firstPage := heap.GetFirstPageID()
	root := idx.Tree().RootPageID()
	require.NoError(t, db.Close())

	db, err = Open(path, testOptions())
	require.NoError(t, err)
	defer db.Close()
	heap, err = db.OpenTableHeap(firstPage, accountSchema())
	require.NoError(t, err)
	idx, err = db.OpenIndex(1, "pk_accounts", accountKeySchema())
	require.NoError(t, err)
	assert.Equal(t, root, idx.Tree().RootPageID())

	for _, id := range []int{0, 1, 150, 299} {
		row := lookup(t, heap, idx, id)
		assert.Equal(t, int32(id), row.Field(0).Int())
		assert.Equal(t, fmt.Sprintf("owner-%03d", id), row.Field(1).Char())
	}

	rids, err := idx.ScanKey(context.Background(), record.NewRow(record.NewIntField(290)), indexmanager.OpGreaterEqual, nil)
	require.NoError(t, err)
	assert.Len(t, rids, 10)
}

func TestEngineBackup(t *testing.T) {
	db, _ := setupEngine(t)
	heap, _ := loadAccounts(t, db, 120)

	backup := filepath.Join(t.TempDir(), "bank-backup.db")
	n, err := db.Backup(context.Background(), backup)
	require.NoError(t, err)
	assert.Positive(t, n)

	copyDB, err := Open(backup, testOptions())
	require.NoError(t, err)
	defer copyDB.Close()
	copyHeap, err := copyDB.OpenTableHeap(heap.GetFirstPageID(), accountSchema())
	require.NoError(t, err)
	copyIdx, err := copyDB.OpenIndex(1, "pk_accounts", accountKeySchema())
	require.NoError(t, err)

	row := lookup(t, copyHeap, copyIdx, 77)
	assert.Equal(t, "owner-077", row.Field(1).Char())
	assert.InDelta(t, 115.5, row.Field(2).Float(), 0.001)
}

func TestEngineCloseReportsPinnedPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinned.db")
	db, err := Open(path, testOptions())
	require.NoError(t, err)

	_, err = db.BufferPool().FetchPage(pagemanager.IndexRootsPageID)
	require.NoError(t, err)
	require.ErrorIs(t, db.Close(), flushmanager.ErrPagesStillPinned)

	// The file is released regardless.
	db, err = Open(path, testOptions())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestEngineRejectsUseAfterClose(t *testing.T) {
	db, _ := setupEngine(t)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.CreateTableHeap(accountSchema())
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseNotOpen)
	_, err = db.OpenIndex(1, "pk", accountKeySchema())
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseNotOpen)
	_, err = db.Backup(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorIs(t, err, flushmanager.ErrDatabaseNotOpen)
	assert.ErrorIs(t, db.Flush(), flushmanager.ErrDatabaseNotOpen)
}

func TestEngineFileIsExclusive(t *testing.T) {
	_, path := setupEngine(t)
	_, err := Open(path, testOptions())
	assert.ErrorIs(t, err, flushmanager.ErrDBFileLocked)
}

func TestOpenRejectsUnknownReplacer(t *testing.T) {
	opts := testOptions()
	opts.Replacer = "fifo"
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), opts)
	assert.Error(t, err)
}
