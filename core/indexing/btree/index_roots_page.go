package btree

import (
	"encoding/binary"
	"fmt"

	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// Index roots page layout: a u32 count followed by (index id u32, root page id i32) entries.
const (
	rootsCountOffset = 0
	rootsEntriesBase = 4
	rootsEntrySize   = 8

	// MaxIndexRoots is how many indexes one database file can register.
	MaxIndexRoots = (pagemanager.PageSize - rootsEntriesBase) / rootsEntrySize
)

// IndexRootsPage maps index ids to the page id of their current root.
type IndexRootsPage struct {
	data []byte
}

func AsIndexRootsPage(page *pagemanager.Page) IndexRootsPage {
	return IndexRootsPage{data: page.GetData()}
}

func (r IndexRootsPage) Init()      { binary.LittleEndian.PutUint32(r.data[rootsCountOffset:], 0) }
func (r IndexRootsPage) Count() int { return int(binary.LittleEndian.Uint32(r.data[rootsCountOffset:])) }

func (r IndexRootsPage) setCount(n int) {
	binary.LittleEndian.PutUint32(r.data[rootsCountOffset:], uint32(n))
}

func (r IndexRootsPage) entry(i int) (uint32, pagemanager.PageID) {
	off := rootsEntriesBase + i*rootsEntrySize
	return binary.LittleEndian.Uint32(r.data[off:]), pagemanager.PageID(int32(binary.LittleEndian.Uint32(r.data[off+4:])))
}

func (r IndexRootsPage) setEntry(i int, indexID uint32, root pagemanager.PageID) {
	off := rootsEntriesBase + i*rootsEntrySize
	binary.LittleEndian.PutUint32(r.data[off:], indexID)
	binary.LittleEndian.PutUint32(r.data[off+4:], uint32(int32(root)))
}

func (r IndexRootsPage) find(indexID uint32) int {
	for i := 0; i < r.Count(); i++ {
		if id, _ := r.entry(i); id == indexID {
			return i
		}
	}
	return -1
}

// Insert registers a new index. It returns false if the id is already present
// or the page is full.
func (r IndexRootsPage) Insert(indexID uint32, root pagemanager.PageID) bool {
	n := r.Count()
	if r.find(indexID) >= 0 || n >= MaxIndexRoots {
		return false
	}
	r.setEntry(n, indexID, root)
	r.setCount(n + 1)
	return true
}

// Update changes the root of a registered index.
func (r IndexRootsPage) Update(indexID uint32, root pagemanager.PageID) bool {
	i := r.find(indexID)
	if i < 0 {
		return false
	}
	r.setEntry(i, indexID, root)
	return true
}

// Delete unregisters an index, moving the last entry into its place.
func (r IndexRootsPage) Delete(indexID uint32) bool {
	i := r.find(indexID)
	if i < 0 {
		return false
	}
	last := r.Count() - 1
	if i != last {
		id, root := r.entry(last)
		r.setEntry(i, id, root)
	}
	r.setCount(last)
	return true
}

func (r IndexRootsPage) GetRootID(indexID uint32) (pagemanager.PageID, bool) {
	i := r.find(indexID)
	if i < 0 {
		return pagemanager.InvalidPageID, false
	}
	_, root := r.entry(i)
	return root, true
}

// EnsureIndexRootsPage formats the index roots page of a fresh database file.
// It must run before any other page is allocated so that the registry lands on
// IndexRootsPageID. On an existing file it does nothing.
func EnsureIndexRootsPage(bpm *memtable.BufferPoolManager) error {
	if bpm.DiskManager().NumAllocatedPages() > 0 {
		free, err := bpm.DiskManager().IsPageFree(pagemanager.IndexRootsPageID)
		if err != nil {
			return err
		}
		if free {
			return fmt.Errorf("%w: index roots page %d is not allocated", flushmanager.ErrInvalidPageData, pagemanager.IndexRootsPageID)
		}
		return nil
	}
	page, pageID, err := bpm.NewPage()
	if err != nil {
		return fmt.Errorf("failed to allocate index roots page: %w", err)
	}
	if pageID != pagemanager.IndexRootsPageID {
		_ = bpm.UnpinPage(pageID, false)
		return fmt.Errorf("%w: index roots page allocated at %d", flushmanager.ErrInvalidPageData, pageID)
	}
	page.Lock()
	AsIndexRootsPage(page).Init()
	page.Unlock()
	if err := bpm.UnpinPage(pageID, true); err != nil {
		return err
	}
	return bpm.FlushPage(pageID)
}
