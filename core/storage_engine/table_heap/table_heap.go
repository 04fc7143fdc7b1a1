package tableheap

import (
	"errors"
	"fmt"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"go.uber.org/zap"
)

// TableHeap is an unordered collection of rows stored in a doubly linked
// chain of table pages starting at firstPageID.
type TableHeap struct {
	bpm         *memtable.BufferPoolManager
	firstPageID pagemanager.PageID
	schema      *record.Schema
	lockManager transaction.LockManager
	logger      *zap.Logger
}

// NewTableHeap allocates the first page of a new heap.
func NewTableHeap(bpm *memtable.BufferPoolManager, schema *record.Schema, lockManager transaction.LockManager,
	logger *zap.Logger) (*TableHeap, error) {
	page, pageID, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate first table page: %w", err)
	}
	page.Lock()
	asTablePage(page).Init(pageID, pagemanager.InvalidPageID)
	page.Unlock()
	if err := bpm.UnpinPage(pageID, true); err != nil {
		return nil, err
	}
	return OpenTableHeap(bpm, pageID, schema, lockManager, logger), nil
}

// OpenTableHeap attaches to an existing heap.
func OpenTableHeap(bpm *memtable.BufferPoolManager, firstPageID pagemanager.PageID, schema *record.Schema,
	lockManager transaction.LockManager, logger *zap.Logger) *TableHeap {
	if lockManager == nil {
		lockManager = transaction.NoopLockManager{}
	}
	return &TableHeap{
		bpm:         bpm,
		firstPageID: firstPageID,
		schema:      schema,
		lockManager: lockManager,
		logger:      logging.Component(logger, "table_heap", zap.Int32("first_page_id", int32(firstPageID))),
	}
}

func (th *TableHeap) GetFirstPageID() pagemanager.PageID { return th.firstPageID }
func (th *TableHeap) Schema() *record.Schema             { return th.schema }

// InsertTuple stores row in the first page with room, appending a page to the
// chain when none has. On success row carries its new RowID.
func (th *TableHeap) InsertTuple(row *record.Row, txn *transaction.Transaction) error {
	if size := row.SerializedSize(); size > MaxTupleSize {
		return fmt.Errorf("%w: %d bytes, max %d", flushmanager.ErrTupleTooLarge, size, MaxTupleSize)
	}

	pageID := th.firstPageID
	for {
		page, err := th.bpm.FetchPage(pageID)
		if err != nil {
			return err
		}
		page.Lock()
		tp := asTablePage(page)
		if slot, ok := tp.InsertTuple(row); ok {
			page.Unlock()
			row.SetRowID(record.RowID{PageID: pageID, Slot: slot})
			return th.bpm.UnpinPage(pageID, true)
		}

		next := tp.NextPageID()
		if next.IsValid() {
			page.Unlock()
			if err := th.bpm.UnpinPage(pageID, false); err != nil {
				return err
			}
			pageID = next
			continue
		}

		// Last page is full: append a new one while still holding the tail latch.
		newPage, newPageID, err := th.bpm.NewPage()
		if err != nil {
			page.Unlock()
			_ = th.bpm.UnpinPage(pageID, false)
			return fmt.Errorf("failed to extend table heap: %w", err)
		}
		newPage.Lock()
		newTP := asTablePage(newPage)
		newTP.Init(newPageID, pageID)
		tp.SetNextPageID(newPageID)
		slot, ok := newTP.InsertTuple(row)
		newPage.Unlock()
		page.Unlock()
		if err := th.bpm.UnpinPage(pageID, true); err != nil {
			return err
		}
		if err := th.bpm.UnpinPage(newPageID, true); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: row of %d bytes did not fit an empty page", flushmanager.ErrTupleTooLarge, row.SerializedSize())
		}
		th.logger.Debug("table heap extended", zap.Int32("page_id", int32(newPageID)))
		row.SetRowID(record.RowID{PageID: newPageID, Slot: slot})
		return nil
	}
}

// MarkDelete tombstones the row at rid. The bytes stay until ApplyDelete.
func (th *TableHeap) MarkDelete(rid record.RowID, txn *transaction.Transaction) error {
	if txn != nil && !th.lockManager.LockExclusive(txn, rid) {
		return fmt.Errorf("could not lock row %s", rid)
	}
	return th.withPage(rid.PageID, true, func(tp TablePage) error {
		return tp.MarkDelete(rid.Slot)
	})
}

// UpdateTuple replaces the row at rid in place. ErrNotEnoughSpace is returned
// instead of relocating the row.
func (th *TableHeap) UpdateTuple(row *record.Row, rid record.RowID, txn *transaction.Transaction) error {
	if txn != nil && !th.lockManager.LockExclusive(txn, rid) {
		return fmt.Errorf("could not lock row %s", rid)
	}
	err := th.withPage(rid.PageID, true, func(tp TablePage) error {
		return tp.UpdateTuple(row, rid.Slot)
	})
	if err != nil {
		return err
	}
	row.SetRowID(rid)
	return nil
}

// ApplyDelete physically removes the row at rid.
func (th *TableHeap) ApplyDelete(rid record.RowID, txn *transaction.Transaction) error {
	return th.withPage(rid.PageID, true, func(tp TablePage) error {
		return tp.ApplyDelete(rid.Slot)
	})
}

// RollbackDelete undoes MarkDelete.
func (th *TableHeap) RollbackDelete(rid record.RowID, txn *transaction.Transaction) error {
	return th.withPage(rid.PageID, true, func(tp TablePage) error {
		return tp.RollbackDelete(rid.Slot)
	})
}

// GetTuple reads the row at rid.
func (th *TableHeap) GetTuple(rid record.RowID, txn *transaction.Transaction) (*record.Row, error) {
	if !rid.IsValid() {
		return nil, fmt.Errorf("%w: invalid row id", flushmanager.ErrSlotNotFound)
	}
	if txn != nil && !th.lockManager.LockShared(txn, rid) {
		return nil, fmt.Errorf("could not lock row %s", rid)
	}
	var row *record.Row
	err := th.withPage(rid.PageID, false, func(tp TablePage) error {
		var err error
		row, err = tp.GetTuple(rid.Slot, th.schema)
		return err
	})
	return row, err
}

// FreeHeap deletes every page of the heap. The heap must not be used afterwards.
func (th *TableHeap) FreeHeap() error {
	var errs []error
	pageID := th.firstPageID
	for pageID.IsValid() {
		page, err := th.bpm.FetchPage(pageID)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		page.RLock()
		next := asTablePage(page).NextPageID()
		page.RUnlock()
		if err := th.bpm.UnpinPage(pageID, false); err != nil {
			errs = append(errs, err)
		}
		if err := th.bpm.DeletePage(pageID); err != nil {
			errs = append(errs, err)
		}
		pageID = next
	}
	th.firstPageID = pagemanager.InvalidPageID
	return errors.Join(errs...)
}

// Begin returns an iterator positioned at the first live row.
func (th *TableHeap) Begin(txn *transaction.Transaction) (*TableIterator, error) {
	rid, err := th.firstRowFrom(th.firstPageID)
	if err != nil {
		return nil, err
	}
	return th.iteratorAt(rid, txn)
}

// End returns the past-the-end iterator.
func (th *TableHeap) End() *TableIterator {
	return &TableIterator{heap: th}
}

func (th *TableHeap) iteratorAt(rid record.RowID, txn *transaction.Transaction) (*TableIterator, error) {
	it := &TableIterator{heap: th, txn: txn}
	if !rid.IsValid() {
		return it, nil
	}
	row, err := th.GetTuple(rid, txn)
	if err != nil {
		return nil, err
	}
	it.row = row
	return it, nil
}

// firstRowFrom walks the chain from pageID and returns the first live row id,
// or InvalidRowID when the rest of the chain is empty. Each page is read-latched
// while searched and unpinned before moving on.
func (th *TableHeap) firstRowFrom(pageID pagemanager.PageID) (record.RowID, error) {
	for pageID.IsValid() {
		page, err := th.bpm.FetchPage(pageID)
		if err != nil {
			return record.InvalidRowID, err
		}
		page.RLock()
		tp := asTablePage(page)
		slot, ok := tp.FirstTupleSlot()
		next := tp.NextPageID()
		page.RUnlock()
		if err := th.bpm.UnpinPage(pageID, false); err != nil {
			return record.InvalidRowID, err
		}
		if ok {
			return record.RowID{PageID: pageID, Slot: slot}, nil
		}
		pageID = next
	}
	return record.InvalidRowID, nil
}

// nextRowID returns the live row following rid in page-then-slot order.
func (th *TableHeap) nextRowID(rid record.RowID) (record.RowID, error) {
	page, err := th.bpm.FetchPage(rid.PageID)
	if err != nil {
		return record.InvalidRowID, err
	}
	page.RLock()
	tp := asTablePage(page)
	slot, ok := tp.NextTupleSlot(rid.Slot)
	next := tp.NextPageID()
	page.RUnlock()
	if err := th.bpm.UnpinPage(rid.PageID, false); err != nil {
		return record.InvalidRowID, err
	}
	if ok {
		return record.RowID{PageID: rid.PageID, Slot: slot}, nil
	}
	return th.firstRowFrom(next)
}

// withPage runs fn on the table page under a read or write latch and unpins
// it on every path.
func (th *TableHeap) withPage(pageID pagemanager.PageID, write bool, fn func(TablePage) error) error {
	page, err := th.bpm.FetchPage(pageID)
	if err != nil {
		return err
	}
	if write {
		page.Lock()
	} else {
		page.RLock()
	}
	fnErr := fn(asTablePage(page))
	if write {
		page.Unlock()
	} else {
		page.RUnlock()
	}
	if err := th.bpm.UnpinPage(pageID, write && fnErr == nil); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}
