package btree

import (
	"encoding/binary"
	"fmt"

	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// Node header shared by leaf and internal pages:
//
//	[0:4)   page type
//	[4:8)   size, number of pairs
//	[8:12)  max size
//	[12:16) page id
//	[16:20) parent page id
//	[20:24) next leaf page id (leaf only)
const (
	offsetPageType   = 0
	offsetSize       = 4
	offsetMaxSize    = 8
	offsetPageID     = 12
	offsetParentID   = 16
	offsetNextPageID = 20

	internalHeaderSize = 20
	leafHeaderSize     = 24

	leafValueSize     = 8 // record.RowIDSize
	internalValueSize = 4 // page id
)

type pageType uint32

const (
	invalidPageType pageType = iota
	leafPageType
	internalPageType
)

func (t pageType) String() string {
	switch t {
	case leafPageType:
		return "leaf"
	case internalPageType:
		return "internal"
	default:
		return fmt.Sprintf("pageType(%d)", uint32(t))
	}
}

// LeafCapacity is how many pairs of keySize bytes fit in one leaf page.
func LeafCapacity(keySize int) int {
	return (pagemanager.PageSize - leafHeaderSize) / (keySize + leafValueSize)
}

// InternalCapacity is how many pairs of keySize bytes fit in one internal page.
func InternalCapacity(keySize int) int {
	return (pagemanager.PageSize - internalHeaderSize) / (keySize + internalValueSize)
}

// treePage is the header view common to both node kinds.
type treePage struct {
	data []byte
}

func (p treePage) pageType() pageType { return pageType(binary.LittleEndian.Uint32(p.data[offsetPageType:])) }
func (p treePage) isLeaf() bool       { return p.pageType() == leafPageType }
func (p treePage) size() int          { return int(p.getInt32(offsetSize)) }
func (p treePage) setSize(n int)      { p.putInt32(offsetSize, int32(n)) }
func (p treePage) increaseSize(n int) { p.setSize(p.size() + n) }
func (p treePage) maxSize() int       { return int(p.getInt32(offsetMaxSize)) }
func (p treePage) pageID() pagemanager.PageID {
	return pagemanager.PageID(p.getInt32(offsetPageID))
}
func (p treePage) parentPageID() pagemanager.PageID {
	return pagemanager.PageID(p.getInt32(offsetParentID))
}
func (p treePage) setParentPageID(id pagemanager.PageID) { p.putInt32(offsetParentID, int32(id)) }
func (p treePage) isRoot() bool                          { return !p.parentPageID().IsValid() }

// minSize is the occupancy below which a node must borrow or merge.
func (p treePage) minSize() int {
	if p.isRoot() {
		if p.isLeaf() {
			return 1
		}
		return 2
	}
	return (p.maxSize() + 1) / 2
}

func (p treePage) init(t pageType, pageID, parentID pagemanager.PageID, maxSize int) {
	binary.LittleEndian.PutUint32(p.data[offsetPageType:], uint32(t))
	p.setSize(0)
	p.putInt32(offsetMaxSize, int32(maxSize))
	p.putInt32(offsetPageID, int32(pageID))
	p.setParentPageID(parentID)
}

func (p treePage) getInt32(off int) int32    { return int32(binary.LittleEndian.Uint32(p.data[off:])) }
func (p treePage) putInt32(off int, v int32) { binary.LittleEndian.PutUint32(p.data[off:], uint32(v)) }

// asTreePage views a node of either kind. It panics on a page that is not a node.
func asTreePage(page *pagemanager.Page) treePage {
	p := treePage{data: page.GetData()}
	if t := p.pageType(); t != leafPageType && t != internalPageType {
		panic(fmt.Sprintf("btree: page %d is not a tree node (%s)", page.GetPageID(), t))
	}
	return p
}

// pairArray addresses the fixed-stride (key, value) pairs that follow a node header.
type pairArray struct {
	buf     []byte
	base    int
	keySize int
	stride  int
}

func newPairArray(data []byte, headerSize, keySize, valueSize int) pairArray {
	return pairArray{buf: data, base: headerSize, keySize: keySize, stride: keySize + valueSize}
}

func (a pairArray) off(i int) int      { return a.base + i*a.stride }
func (a pairArray) keyAt(i int) []byte { return a.buf[a.off(i) : a.off(i)+a.keySize] }
func (a pairArray) setKeyAt(i int, key []byte) {
	copy(a.keyAt(i), key)
}
func (a pairArray) valueBytes(i int) []byte {
	return a.buf[a.off(i)+a.keySize : a.off(i)+a.stride]
}

// shiftRight opens a hole at i by moving pairs [i, n) one slot up.
func (a pairArray) shiftRight(i, n int) {
	copy(a.buf[a.off(i+1):a.off(n+1)], a.buf[a.off(i):a.off(n)])
}

// shiftLeft closes the hole at i by moving pairs (i, n) one slot down.
func (a pairArray) shiftLeft(i, n int) {
	copy(a.buf[a.off(i):a.off(n-1)], a.buf[a.off(i+1):a.off(n)])
}

// copyPairs copies pairs [from, to) of a into dst starting at slot at.
func (a pairArray) copyPairs(dst pairArray, at, from, to int) {
	copy(dst.buf[dst.off(at):dst.off(at+to-from)], a.buf[a.off(from):a.off(to)])
}

func cloneKey(key []byte) []byte {
	return append([]byte(nil), key...)
}
