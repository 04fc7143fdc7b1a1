package tableheap

import (
	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
)

// TableIterator walks a heap in page-then-slot order. It keeps a decoded copy
// of the current row and holds no pins between calls.
type TableIterator struct {
	heap *TableHeap
	row  *record.Row // nil at the end
	txn  *transaction.Transaction
}

// IsEnd reports whether the iterator is past the last row.
func (it *TableIterator) IsEnd() bool { return it.row == nil }

// Row returns the current row, nil at the end.
func (it *TableIterator) Row() *record.Row { return it.row }

// RowID returns the current position, InvalidRowID at the end.
func (it *TableIterator) RowID() record.RowID {
	if it.row == nil {
		return record.InvalidRowID
	}
	return it.row.RowID()
}

// Equal compares positions only.
func (it *TableIterator) Equal(other *TableIterator) bool {
	return it.RowID() == other.RowID()
}

// Next advances to the following live row, or to the end.
func (it *TableIterator) Next() error {
	if it.row == nil {
		return flushmanager.ErrIteratorInvalid
	}
	rid, err := it.heap.nextRowID(it.row.RowID())
	if err != nil {
		return err
	}
	if !rid.IsValid() {
		it.row = nil
		return nil
	}
	row, err := it.heap.GetTuple(rid, it.txn)
	if err != nil {
		return err
	}
	it.row = row
	return nil
}
