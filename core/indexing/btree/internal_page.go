package btree

import (
	"encoding/binary"
	"fmt"

	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// internalPage stores size child pointers and size-1 separator keys. The key
// in slot 0 is not used for routing.
type internalPage struct {
	treePage
	pairs pairArray
}

func newInternalView(data []byte, keySize int) internalPage {
	return internalPage{
		treePage: treePage{data: data},
		pairs:    newPairArray(data, internalHeaderSize, keySize, internalValueSize),
	}
}

// asInternalPage views page as an internal node. It panics if the page holds another node kind.
func asInternalPage(page *pagemanager.Page, keySize int) internalPage {
	node := newInternalView(page.GetData(), keySize)
	if t := node.pageType(); t != internalPageType {
		panic(fmt.Sprintf("btree: page %d is a %s page, want internal", page.GetPageID(), t))
	}
	return node
}

func (n internalPage) init(pageID, parentID pagemanager.PageID, maxSize int) {
	n.treePage.init(internalPageType, pageID, parentID, maxSize)
}

func (n internalPage) keyAt(i int) []byte         { return n.pairs.keyAt(i) }
func (n internalPage) setKeyAt(i int, key []byte) { n.pairs.setKeyAt(i, key) }
func (n internalPage) valueAt(i int) pagemanager.PageID {
	return pagemanager.PageID(int32(binary.LittleEndian.Uint32(n.pairs.valueBytes(i))))
}
func (n internalPage) setValueAt(i int, id pagemanager.PageID) {
	binary.LittleEndian.PutUint32(n.pairs.valueBytes(i), uint32(int32(id)))
}
func (n internalPage) setPair(i int, key []byte, id pagemanager.PageID) {
	n.setKeyAt(i, key)
	n.setValueAt(i, id)
}

// valueIndex returns the slot pointing at child, or -1.
func (n internalPage) valueIndex(child pagemanager.PageID) int {
	for i := 0; i < n.size(); i++ {
		if n.valueAt(i) == child {
			return i
		}
	}
	return -1
}

// lookup picks the child at the largest index i with key(i) <= key, using
// slot 0 when every separator is greater.
func (n internalPage) lookup(key []byte, cmp KeyComparator) pagemanager.PageID {
	lo, hi := 1, n.size()-1
	child := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if cmp(n.keyAt(mid), key) <= 0 {
			child = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return n.valueAt(child)
}

// populateNewRoot fills a fresh root that replaces a split root.
func (n internalPage) populateNewRoot(left pagemanager.PageID, key []byte, right pagemanager.PageID) {
	clear(n.keyAt(0))
	n.setValueAt(0, left)
	n.setPair(1, key, right)
	n.setSize(2)
}

// insertNodeAfter adds (key, newChild) right after oldChild and returns the new size.
func (n internalPage) insertNodeAfter(oldChild pagemanager.PageID, key []byte, newChild pagemanager.PageID) int {
	i := n.valueIndex(oldChild) + 1
	n.pairs.shiftRight(i, n.size())
	n.setPair(i, key, newChild)
	n.increaseSize(1)
	return n.size()
}

func (n internalPage) remove(i int) {
	n.pairs.shiftLeft(i, n.size())
	n.increaseSize(-1)
}

// moveHalfTo moves the upper half of the children to an empty recipient. The
// recipient's slot 0 key is the separator to push into the parent. The caller
// re-parents the moved children.
func (n internalPage) moveHalfTo(recipient internalPage) {
	size := n.size()
	keep := size / 2
	n.pairs.copyPairs(recipient.pairs, recipient.size(), keep, size)
	recipient.increaseSize(size - keep)
	n.setSize(keep)
}

// moveAllTo appends every child to recipient, the left neighbour. middleKey is
// the parent separator between the two and becomes a routing key again.
func (n internalPage) moveAllTo(recipient internalPage, middleKey []byte) {
	n.setKeyAt(0, middleKey)
	n.pairs.copyPairs(recipient.pairs, recipient.size(), 0, n.size())
	recipient.increaseSize(n.size())
	n.setSize(0)
}

// moveFirstToEndOf lends n's first child to its left neighbour. Afterwards
// n.keyAt(0) is the new parent separator.
func (n internalPage) moveFirstToEndOf(recipient internalPage, middleKey []byte) {
	recipient.setPair(recipient.size(), middleKey, n.valueAt(0))
	recipient.increaseSize(1)
	n.remove(0)
}

// moveLastToFrontOf lends n's last child to its right neighbour. Afterwards
// recipient.keyAt(0) is the new parent separator.
func (n internalPage) moveLastToFrontOf(recipient internalPage, middleKey []byte) {
	last := n.size() - 1
	recipient.setKeyAt(0, middleKey)
	recipient.pairs.shiftRight(0, recipient.size())
	n.pairs.copyPairs(recipient.pairs, 0, last, last+1)
	recipient.increaseSize(1)
	n.setSize(last)
}
