package tableheap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

func newTestTablePage(t *testing.T) TablePage {
	t.Helper()
	page := pagemanager.NewPage(3, pagemanager.PageSize)
	tp := asTablePage(page)
	tp.Init(3, pagemanager.InvalidPageID)
	return tp
}

func TestTablePageInit(t *testing.T) {
	tp := newTestTablePage(t)
	assert.Equal(t, pagemanager.PageID(3), tp.PageID())
	assert.Equal(t, pagemanager.InvalidPageID, tp.PrevPageID())
	assert.Equal(t, pagemanager.InvalidPageID, tp.NextPageID())
	assert.Equal(t, uint32(0), tp.TupleCount())
	assert.Equal(t, uint32(pagemanager.PageSize-tablePageHeader), tp.FreeSpaceRemaining())
	_, ok := tp.FirstTupleSlot()
	assert.False(t, ok)
}

func TestTablePageFillUntilFull(t *testing.T) {
	tp := newTestTablePage(t)
	schema := testSchema()
	row := testRow(5)
	size := uint32(row.SerializedSize())

	inserted := uint32(0)
	for {
		slot, ok := tp.InsertTuple(testRow(5))
		if !ok {
			break
		}
		assert.Equal(t, inserted, slot)
		inserted++
	}
	assert.Equal(t, uint32(pagemanager.PageSize-tablePageHeader)/(size+slotEntrySize), inserted)
	assert.Less(t, tp.FreeSpaceRemaining(), size+slotEntrySize)

	for slot := uint32(0); slot < inserted; slot++ {
		got, err := tp.GetTuple(slot, schema)
		require.NoError(t, err)
		assert.Equal(t, row.String(), got.String())
	}
}

func TestTablePageApplyDeleteReusesSlot(t *testing.T) {
	tp := newTestTablePage(t)
	schema := testSchema()
	for i := 0; i < 4; i++ {
		_, ok := tp.InsertTuple(testRow(i))
		require.True(t, ok)
	}
	free := tp.FreeSpaceRemaining()

	require.NoError(t, tp.ApplyDelete(1))
	assert.Equal(t, free+uint32(testRow(1).SerializedSize()), tp.FreeSpaceRemaining())
	_, err := tp.GetTuple(1, schema)
	require.ErrorIs(t, err, flushmanager.ErrSlotNotFound)
	require.ErrorIs(t, tp.ApplyDelete(1), flushmanager.ErrSlotNotFound)

	// Rows below the removed one were compacted but keep their slots.
	for _, i := range []uint32{0, 2, 3} {
		got, err := tp.GetTuple(i, schema)
		require.NoError(t, err)
		assert.Equal(t, testRow(int(i)).String(), got.String())
	}

	slot, ok := tp.InsertTuple(testRow(9))
	require.True(t, ok)
	assert.Equal(t, uint32(1), slot)
	assert.Equal(t, uint32(4), tp.TupleCount())
}

func TestTablePageIterationSkipsDeleted(t *testing.T) {
	tp := newTestTablePage(t)
	for i := 0; i < 5; i++ {
		_, ok := tp.InsertTuple(testRow(i))
		require.True(t, ok)
	}
	require.NoError(t, tp.MarkDelete(0))
	require.NoError(t, tp.ApplyDelete(3))

	var slots []uint32
	for slot, ok := tp.FirstTupleSlot(); ok; slot, ok = tp.NextTupleSlot(slot) {
		slots = append(slots, slot)
	}
	assert.Equal(t, []uint32{1, 2, 4}, slots)
	require.ErrorIs(t, tp.MarkDelete(0), flushmanager.ErrTupleDeleted)
}

func TestTablePageUpdateNotEnoughSpace(t *testing.T) {
	tp := newTestTablePage(t)
	for {
		if _, ok := tp.InsertTuple(testRow(1)); !ok {
			break
		}
	}
	grown := record.NewRow(record.NewIntField(1), record.NewCharField(strings.Repeat("g", 200)), record.NewFloatField(2))
	require.ErrorIs(t, tp.UpdateTuple(grown, 0), flushmanager.ErrNotEnoughSpace)
	require.ErrorIs(t, tp.UpdateTuple(grown, 999), flushmanager.ErrSlotNotFound)
}
