package tableheap

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// Slotted page layout:
//
//	[0:4)    page id
//	[4:8)    prev page id
//	[8:12)   next page id
//	[12:16)  free space pointer, start of the tuple area
//	[16:20)  tuple count, number of slots ever used
//	[20:)    slots of (offset u32, size u32), growing upward
//	...      free space
//	[fsp:)   tuple bytes, growing downward from the end of the page
//
// A slot with size 0 is empty. The high bit of size marks a tuple deleted but not yet reclaimed.
const (
	offsetPageID    = 0
	offsetPrevPage  = 4
	offsetNextPage  = 8
	offsetFreeSpace = 12
	offsetTupleCnt  = 16
	tablePageHeader = 20
	slotEntrySize   = 8

	deleteMask uint32 = 1 << 31

	// MaxTupleSize is the largest serialized row a table page can hold.
	MaxTupleSize = pagemanager.PageSize - tablePageHeader - slotEntrySize
)

// TablePage is a typed view over the bytes of a pinned buffer pool page.
// Callers hold the page latch while using it.
type TablePage struct {
	data []byte
}

func asTablePage(page *pagemanager.Page) TablePage {
	return TablePage{data: page.GetData()}
}

// Init formats an empty page linked after prevPageID.
func (tp TablePage) Init(pageID, prevPageID pagemanager.PageID) {
	tp.putInt32(offsetPageID, int32(pageID))
	tp.SetPrevPageID(prevPageID)
	tp.SetNextPageID(pagemanager.InvalidPageID)
	tp.setFreeSpacePointer(pagemanager.PageSize)
	tp.setTupleCount(0)
}

func (tp TablePage) PageID() pagemanager.PageID { return pagemanager.PageID(tp.getInt32(offsetPageID)) }
func (tp TablePage) PrevPageID() pagemanager.PageID {
	return pagemanager.PageID(tp.getInt32(offsetPrevPage))
}
func (tp TablePage) NextPageID() pagemanager.PageID {
	return pagemanager.PageID(tp.getInt32(offsetNextPage))
}
func (tp TablePage) SetPrevPageID(id pagemanager.PageID) { tp.putInt32(offsetPrevPage, int32(id)) }
func (tp TablePage) SetNextPageID(id pagemanager.PageID) { tp.putInt32(offsetNextPage, int32(id)) }
func (tp TablePage) TupleCount() uint32                  { return tp.getUint32(offsetTupleCnt) }

// FreeSpaceRemaining is the gap between the slot directory and the tuple area.
func (tp TablePage) FreeSpaceRemaining() uint32 {
	return tp.freeSpacePointer() - tablePageHeader - slotEntrySize*tp.TupleCount()
}

// InsertTuple stores row and returns its slot. It returns false if the page is full.
func (tp TablePage) InsertTuple(row *record.Row) (uint32, bool) {
	size := uint32(row.SerializedSize())
	if size == 0 || size > MaxTupleSize {
		return 0, false
	}
	// Reuse an empty slot before growing the directory.
	slot := tp.TupleCount()
	for i := uint32(0); i < tp.TupleCount(); i++ {
		if tp.slotSize(i) == 0 {
			slot = i
			break
		}
	}
	need := size
	if slot == tp.TupleCount() {
		need += slotEntrySize
	}
	if tp.FreeSpaceRemaining() < need {
		return 0, false
	}

	offset := tp.freeSpacePointer() - size
	row.SerializeTo(tp.data[offset : offset+size])
	tp.setFreeSpacePointer(offset)
	tp.setSlot(slot, offset, size)
	if slot == tp.TupleCount() {
		tp.setTupleCount(slot + 1)
	}
	return slot, true
}

// MarkDelete flags the tuple as deleted while keeping its bytes for rollback.
func (tp TablePage) MarkDelete(slot uint32) error {
	size, err := tp.liveSlot(slot)
	if err != nil {
		return err
	}
	tp.setSlotSize(slot, size|deleteMask)
	return nil
}

// RollbackDelete clears the delete flag set by MarkDelete.
func (tp TablePage) RollbackDelete(slot uint32) error {
	if slot >= tp.TupleCount() || tp.slotSize(slot) == 0 {
		return fmt.Errorf("%w: slot %d", flushmanager.ErrSlotNotFound, slot)
	}
	tp.setSlotSize(slot, tp.slotSize(slot)&^deleteMask)
	return nil
}

// ApplyDelete removes the tuple bytes and compacts the tuple area. The slot
// stays in the directory as empty so other slots keep their numbers.
func (tp TablePage) ApplyDelete(slot uint32) error {
	if slot >= tp.TupleCount() || tp.slotSize(slot) == 0 {
		return fmt.Errorf("%w: slot %d", flushmanager.ErrSlotNotFound, slot)
	}
	offset := tp.slotOffset(slot)
	size := tp.slotSize(slot) &^ deleteMask
	fsp := tp.freeSpacePointer()

	copy(tp.data[fsp+size:offset+size], tp.data[fsp:offset])
	clear(tp.data[fsp : fsp+size])
	tp.setFreeSpacePointer(fsp + size)
	tp.setSlot(slot, 0, 0)
	tp.shiftSlotsBelow(offset, int64(size))
	return nil
}

// UpdateTuple replaces the tuple in place. ErrNotEnoughSpace means the caller
// has to delete and reinsert, which gives the row a new RowID.
func (tp TablePage) UpdateTuple(row *record.Row, slot uint32) error {
	oldSize, err := tp.liveSlot(slot)
	if err != nil {
		return err
	}
	newSize := uint32(row.SerializedSize())
	if newSize > MaxTupleSize {
		return fmt.Errorf("%w: %d bytes", flushmanager.ErrTupleTooLarge, newSize)
	}
	if newSize > oldSize && newSize-oldSize > tp.FreeSpaceRemaining() {
		return fmt.Errorf("%w: slot %d needs %d more bytes", flushmanager.ErrNotEnoughSpace, slot, newSize-oldSize)
	}

	offset := tp.slotOffset(slot)
	fsp := tp.freeSpacePointer()
	delta := int64(oldSize) - int64(newSize)
	newFsp := uint32(int64(fsp) + delta)
	// Move the tuples stored below this one so the hole fits the new size exactly.
	copy(tp.data[newFsp:int64(offset)+delta], tp.data[fsp:offset])
	if delta > 0 {
		clear(tp.data[fsp:newFsp])
	}
	newOffset := uint32(int64(offset) + delta)
	row.SerializeTo(tp.data[newOffset : newOffset+newSize])
	tp.setFreeSpacePointer(newFsp)
	tp.shiftSlotsBelow(offset, delta)
	tp.setSlot(slot, newOffset, newSize)
	return nil
}

// GetTuple decodes the tuple in slot.
func (tp TablePage) GetTuple(slot uint32, schema *record.Schema) (*record.Row, error) {
	size, err := tp.liveSlot(slot)
	if err != nil {
		return nil, err
	}
	offset := tp.slotOffset(slot)
	row, err := record.DeserializeRow(tp.data[offset:offset+size], schema)
	if err != nil {
		return nil, err
	}
	row.SetRowID(record.RowID{PageID: tp.PageID(), Slot: slot})
	return row, nil
}

// FirstTupleSlot returns the first live slot.
func (tp TablePage) FirstTupleSlot() (uint32, bool) {
	return tp.nextLiveSlot(0)
}

// NextTupleSlot returns the first live slot after cur.
func (tp TablePage) NextTupleSlot(cur uint32) (uint32, bool) {
	return tp.nextLiveSlot(cur + 1)
}

func (tp TablePage) nextLiveSlot(from uint32) (uint32, bool) {
	for i := from; i < tp.TupleCount(); i++ {
		if size := tp.slotSize(i); size != 0 && size&deleteMask == 0 {
			return i, true
		}
	}
	return 0, false
}

// liveSlot returns the size of a present, not-deleted tuple.
func (tp TablePage) liveSlot(slot uint32) (uint32, error) {
	if slot >= tp.TupleCount() || tp.slotSize(slot) == 0 {
		return 0, fmt.Errorf("%w: slot %d", flushmanager.ErrSlotNotFound, slot)
	}
	size := tp.slotSize(slot)
	if size&deleteMask != 0 {
		return 0, fmt.Errorf("%w: slot %d", flushmanager.ErrTupleDeleted, slot)
	}
	return size, nil
}

// shiftSlotsBelow moves every tuple stored below boundary by delta bytes.
func (tp TablePage) shiftSlotsBelow(boundary uint32, delta int64) {
	if delta == 0 {
		return
	}
	for i := uint32(0); i < tp.TupleCount(); i++ {
		if tp.slotSize(i) == 0 {
			continue
		}
		if off := tp.slotOffset(i); off < boundary {
			tp.setSlotOffset(i, uint32(int64(off)+delta))
		}
	}
}

func (tp TablePage) freeSpacePointer() uint32     { return tp.getUint32(offsetFreeSpace) }
func (tp TablePage) setFreeSpacePointer(v uint32) { tp.putUint32(offsetFreeSpace, v) }
func (tp TablePage) setTupleCount(v uint32)       { tp.putUint32(offsetTupleCnt, v) }

func (tp TablePage) slotOffset(slot uint32) uint32 {
	return tp.getUint32(tablePageHeader + slotEntrySize*int(slot))
}
func (tp TablePage) slotSize(slot uint32) uint32 {
	return tp.getUint32(tablePageHeader + slotEntrySize*int(slot) + 4)
}
func (tp TablePage) setSlotOffset(slot, offset uint32) {
	tp.putUint32(tablePageHeader+slotEntrySize*int(slot), offset)
}
func (tp TablePage) setSlotSize(slot, size uint32) {
	tp.putUint32(tablePageHeader+slotEntrySize*int(slot)+4, size)
}
func (tp TablePage) setSlot(slot, offset, size uint32) {
	tp.setSlotOffset(slot, offset)
	tp.setSlotSize(slot, size)
}

func (tp TablePage) getUint32(off int) uint32    { return binary.LittleEndian.Uint32(tp.data[off:]) }
func (tp TablePage) putUint32(off int, v uint32) { binary.LittleEndian.PutUint32(tp.data[off:], v) }
func (tp TablePage) getInt32(off int) int32      { return int32(tp.getUint32(off)) }
func (tp TablePage) putInt32(off int, v int32)   { tp.putUint32(off, uint32(v)) }
