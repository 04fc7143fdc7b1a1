package btree

import (
	"fmt"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// leafPage stores sorted (key, RowID) pairs and the id of the next leaf.
type leafPage struct {
	treePage
	pairs pairArray
}

func newLeafView(data []byte, keySize int) leafPage {
	return leafPage{
		treePage: treePage{data: data},
		pairs:    newPairArray(data, leafHeaderSize, keySize, leafValueSize),
	}
}

// asLeafPage views page as a leaf. It panics if the page holds another node kind.
func asLeafPage(page *pagemanager.Page, keySize int) leafPage {
	leaf := newLeafView(page.GetData(), keySize)
	if t := leaf.pageType(); t != leafPageType {
		panic(fmt.Sprintf("btree: page %d is a %s page, want leaf", page.GetPageID(), t))
	}
	return leaf
}

func (l leafPage) init(pageID, parentID pagemanager.PageID, maxSize int) {
	l.treePage.init(leafPageType, pageID, parentID, maxSize)
	l.setNextPageID(pagemanager.InvalidPageID)
}

func (l leafPage) nextPageID() pagemanager.PageID {
	return pagemanager.PageID(l.getInt32(offsetNextPageID))
}
func (l leafPage) setNextPageID(id pagemanager.PageID) { l.putInt32(offsetNextPageID, int32(id)) }

func (l leafPage) keyAt(i int) []byte { return l.pairs.keyAt(i) }
func (l leafPage) valueAt(i int) record.RowID {
	return record.DecodeRowID(l.pairs.valueBytes(i))
}
func (l leafPage) setPair(i int, key []byte, value record.RowID) {
	l.pairs.setKeyAt(i, key)
	value.Encode(l.pairs.valueBytes(i))
}

// keyIndex returns the first index whose key is >= key, or size.
func (l leafPage) keyIndex(key []byte, cmp KeyComparator) int {
	lo, hi := 0, l.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.keyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (l leafPage) lookup(key []byte, cmp KeyComparator) (record.RowID, bool) {
	i := l.keyIndex(key, cmp)
	if i < l.size() && cmp(l.keyAt(i), key) == 0 {
		return l.valueAt(i), true
	}
	return record.InvalidRowID, false
}

// insert places the pair in key order and returns the new size. The caller
// has already checked that key is absent.
func (l leafPage) insert(key []byte, value record.RowID, cmp KeyComparator) int {
	i := l.keyIndex(key, cmp)
	l.pairs.shiftRight(i, l.size())
	l.setPair(i, key, value)
	l.increaseSize(1)
	return l.size()
}

func (l leafPage) removeAt(i int) {
	l.pairs.shiftLeft(i, l.size())
	l.increaseSize(-1)
}

// moveHalfTo moves the upper half of the pairs to an empty recipient.
func (l leafPage) moveHalfTo(recipient leafPage) {
	size := l.size()
	keep := size / 2
	l.pairs.copyPairs(recipient.pairs, recipient.size(), keep, size)
	recipient.increaseSize(size - keep)
	l.setSize(keep)
}

// moveAllTo appends every pair to recipient, the left neighbour, and unlinks l
// from the leaf chain.
func (l leafPage) moveAllTo(recipient leafPage) {
	l.pairs.copyPairs(recipient.pairs, recipient.size(), 0, l.size())
	recipient.increaseSize(l.size())
	recipient.setNextPageID(l.nextPageID())
	l.setSize(0)
}

// moveFirstToEndOf lends l's smallest pair to its left neighbour.
func (l leafPage) moveFirstToEndOf(recipient leafPage) {
	l.pairs.copyPairs(recipient.pairs, recipient.size(), 0, 1)
	recipient.increaseSize(1)
	l.removeAt(0)
}

// moveLastToFrontOf lends l's largest pair to its right neighbour.
func (l leafPage) moveLastToFrontOf(recipient leafPage) {
	last := l.size() - 1
	recipient.pairs.shiftRight(0, recipient.size())
	l.pairs.copyPairs(recipient.pairs, 0, last, last+1)
	recipient.increaseSize(1)
	l.setSize(last)
}
