package tableheap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	"go.uber.org/zap"
)

func testSchema() *record.Schema {
	return record.NewSchema(
		record.NewColumn("id", record.TypeInt, 0, false, true),
		record.NewCharColumn("name", 64, 1, true, false),
		record.NewColumn("score", record.TypeFloat, 2, true, false),
	)
}

func testRow(i int) *record.Row {
	return record.NewRow(
		record.NewIntField(int32(i)),
		record.NewCharField(fmt.Sprintf("name-%04d-%s", i, strings.Repeat("x", i%20))),
		record.NewFloatField(float32(i)*1.5),
	)
}

func setupTableHeap(t *testing.T, poolSize int) (*TableHeap, *memtable.BufferPoolManager) {
	t.Helper()
	logger := zap.NewNop()
	dm, err := flushmanager.NewDiskManager(filepath.Join(t.TempDir(), "heap.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	bpm := memtable.NewBufferPoolManager(poolSize, dm, nil, logger, nil)
	heap, err := NewTableHeap(bpm, testSchema(), nil, logger)
	require.NoError(t, err)
	return heap, bpm
}

func TestTableHeapInsertAndGet(t *testing.T) {
	heap, bpm := setupTableHeap(t, 8)
	txn := transaction.NewTransaction()

	row := testRow(7)
	require.NoError(t, heap.InsertTuple(row, txn))
	require.True(t, row.RowID().IsValid())
	assert.Equal(t, heap.GetFirstPageID(), row.RowID().PageID)

	got, err := heap.GetTuple(row.RowID(), txn)
	require.NoError(t, err)
	assert.Equal(t, row.String(), got.String())
	assert.Equal(t, row.RowID(), got.RowID())
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestTableHeapChainIteration(t *testing.T) {
	heap, bpm := setupTableHeap(t, 4)
	txn := transaction.NewTransaction()

	const n = 500
	var rids []record.RowID
	for i := 0; i < n; i++ {
		row := testRow(i)
		require.NoError(t, heap.InsertTuple(row, txn))
		rids = append(rids, row.RowID())
	}

	pages := map[pagemanager.PageID]bool{}
	for _, rid := range rids {
		pages[rid.PageID] = true
	}
	require.GreaterOrEqual(t, len(pages), 2, "rows should span several pages")

	// Delete every third row, then iterate.
	deleted := map[int]bool{}
	for i := 0; i < n; i += 3 {
		require.NoError(t, heap.MarkDelete(rids[i], txn))
		require.NoError(t, heap.ApplyDelete(rids[i], txn))
		deleted[i] = true
	}

	// Pages are appended in allocation order, so page-then-slot order is
	// ascending RowID order.
	var want []record.RowID
	for i, rid := range rids {
		if !deleted[i] {
			want = append(want, rid)
		}
	}
	sort.Slice(want, func(a, b int) bool {
		if want[a].PageID != want[b].PageID {
			return want[a].PageID < want[b].PageID
		}
		return want[a].Slot < want[b].Slot
	})

	it, err := heap.Begin(txn)
	require.NoError(t, err)
	var seen []record.RowID
	for !it.Equal(heap.End()) {
		id := int(it.Row().Field(0).Int())
		require.False(t, deleted[id], "deleted row %d visited", id)
		require.Equal(t, rids[id], it.RowID())
		seen = append(seen, it.RowID())
		require.NoError(t, it.Next())
	}
	assert.Equal(t, want, seen)
	assert.ErrorIs(t, it.Next(), flushmanager.ErrIteratorInvalid)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestTableHeapEmptyIteration(t *testing.T) {
	heap, _ := setupTableHeap(t, 4)
	it, err := heap.Begin(nil)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	assert.True(t, it.Equal(heap.End()))
}

func TestTableHeapMarkDeleteRollback(t *testing.T) {
	heap, _ := setupTableHeap(t, 4)
	row := testRow(1)
	require.NoError(t, heap.InsertTuple(row, nil))
	rid := row.RowID()

	require.NoError(t, heap.MarkDelete(rid, nil))
	_, err := heap.GetTuple(rid, nil)
	require.ErrorIs(t, err, flushmanager.ErrTupleDeleted)

	it, err := heap.Begin(nil)
	require.NoError(t, err)
	assert.True(t, it.IsEnd(), "tombstoned rows are skipped")

	require.NoError(t, heap.RollbackDelete(rid, nil))
	got, err := heap.GetTuple(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Field(0).Int())

	require.NoError(t, heap.ApplyDelete(rid, nil))
	_, err = heap.GetTuple(rid, nil)
	require.ErrorIs(t, err, flushmanager.ErrSlotNotFound)
}

func TestTableHeapUpdate(t *testing.T) {
	heap, _ := setupTableHeap(t, 4)
	var rids []record.RowID
	for i := 0; i < 5; i++ {
		row := testRow(i)
		require.NoError(t, heap.InsertTuple(row, nil))
		rids = append(rids, row.RowID())
	}

	// Grow and shrink a middle row; neighbours must be untouched.
	bigger := record.NewRow(record.NewIntField(2), record.NewCharField(strings.Repeat("y", 60)), record.NewNullField(record.TypeFloat))
	require.NoError(t, heap.UpdateTuple(bigger, rids[2], nil))
	smaller := record.NewRow(record.NewIntField(2), record.NewNullField(record.TypeChar), record.NewFloatField(1))
	require.NoError(t, heap.UpdateTuple(smaller, rids[2], nil))

	for i, rid := range rids {
		got, err := heap.GetTuple(rid, nil)
		require.NoError(t, err)
		if i == 2 {
			assert.Equal(t, smaller.String(), got.String())
			continue
		}
		assert.Equal(t, testRow(i).String(), got.String())
	}
}

func TestTableHeapTupleTooLarge(t *testing.T) {
	heap, _ := setupTableHeap(t, 4)
	huge := record.NewRow(record.NewIntField(1), record.NewCharField(strings.Repeat("z", pagemanager.PageSize)), record.NewFloatField(0))
	require.ErrorIs(t, heap.InsertTuple(huge, nil), flushmanager.ErrTupleTooLarge)
}

func TestTableHeapFreeHeap(t *testing.T) {
	heap, bpm := setupTableHeap(t, 4)
	for i := 0; i < 300; i++ {
		require.NoError(t, heap.InsertTuple(testRow(i), nil))
	}
	before := bpm.DiskManager().NumAllocatedPages()
	require.Greater(t, before, uint32(1))

	require.NoError(t, heap.FreeHeap())
	assert.Equal(t, uint32(0), bpm.DiskManager().NumAllocatedPages())
	assert.Equal(t, pagemanager.InvalidPageID, heap.GetFirstPageID())
}

func TestTableHeapReopen(t *testing.T) {
	heap, bpm := setupTableHeap(t, 4)
	for i := 0; i < 100; i++ {
		require.NoError(t, heap.InsertTuple(testRow(i), nil))
	}
	require.NoError(t, bpm.FlushAllPages())

	reopened := OpenTableHeap(bpm, heap.GetFirstPageID(), testSchema(), nil, nil)
	it, err := reopened.Begin(nil)
	require.NoError(t, err)
	ids := map[int32]bool{}
	for ; !it.IsEnd(); require.NoError(t, it.Next()) {
		ids[it.Row().Field(0).Int()] = true
	}
	assert.Len(t, ids, 100)
}
