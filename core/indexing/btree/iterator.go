package btree

import (
	"github.com/sushant-115/minisql/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// Iterator walks leaf pairs in key order. It keeps its current leaf pinned
// until it moves past it or Close is called, and read-latches the leaf only
// while reading from it.
type Iterator struct {
	tree   *BPlusTree
	page   *pagemanager.Page // nil at the end
	pageID pagemanager.PageID
	index  int
}

// Begin positions an iterator at the smallest key.
func (t *BPlusTree) Begin() *Iterator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.rootPageID.IsValid() {
		return t.End()
	}
	page := t.findLeaf(nil, true)
	page.RUnlock()
	it := &Iterator{tree: t, page: page, pageID: page.GetPageID()}
	it.skipExhaustedLeaves()
	return it
}

// BeginAt positions an iterator at the first key >= key.
func (t *BPlusTree) BeginAt(key []byte) *Iterator {
	k := t.normalizeKey(key)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.rootPageID.IsValid() {
		return t.End()
	}
	page := t.findLeaf(k, false)
	index := asLeafPage(page, t.keySize).keyIndex(k, t.cmp)
	page.RUnlock()
	it := &Iterator{tree: t, page: page, pageID: page.GetPageID(), index: index}
	it.skipExhaustedLeaves()
	return it
}

// End returns the past-the-end position.
func (t *BPlusTree) End() *Iterator {
	return &Iterator{tree: t, pageID: pagemanager.InvalidPageID}
}

func (it *Iterator) IsEnd() bool { return it.page == nil }

// Equal reports whether both iterators point at the same position.
func (it *Iterator) Equal(other *Iterator) bool {
	return it.pageID == other.pageID && it.index == other.index
}

// Key returns a copy of the current key.
func (it *Iterator) Key() []byte {
	if it.page == nil {
		return nil
	}
	it.page.RLock()
	defer it.page.RUnlock()
	return cloneKey(asLeafPage(it.page, it.tree.keySize).keyAt(it.index))
}

// Value returns the current RowID.
func (it *Iterator) Value() record.RowID {
	if it.page == nil {
		return record.InvalidRowID
	}
	it.page.RLock()
	defer it.page.RUnlock()
	return asLeafPage(it.page, it.tree.keySize).valueAt(it.index)
}

// Next advances to the following pair, crossing into the next leaf when the
// current one is exhausted.
func (it *Iterator) Next() error {
	if it.page == nil {
		return flushmanager.ErrIteratorInvalid
	}
	it.index++
	it.skipExhaustedLeaves()
	return nil
}

// Close releases the pinned leaf. Closing an iterator at the end is a no-op.
func (it *Iterator) Close() {
	if it.page == nil {
		return
	}
	it.tree.unpin(it.pageID, false)
	it.page = nil
	it.pageID = pagemanager.InvalidPageID
	it.index = 0
	it.tree.releasePending()
}

// skipExhaustedLeaves follows the leaf chain until index addresses a pair or
// the chain ends.
func (it *Iterator) skipExhaustedLeaves() {
	for it.page != nil {
		it.page.RLock()
		leaf := asLeafPage(it.page, it.tree.keySize)
		size, next := leaf.size(), leaf.nextPageID()
		it.page.RUnlock()
		if it.index < size {
			return
		}
		it.Close()
		if !next.IsValid() {
			return
		}
		page, err := it.tree.bpm.FetchPage(next)
		if err != nil {
			it.tree.logger.Error("iterator could not fetch next leaf", zap.Int32("page_id", int32(next)), zap.Error(err))
			return
		}
		it.page, it.pageID, it.index = page, next, 0
	}
}
