package pagemanager

import (
	"sync" // For sync.RWMutex
)

// --- Page Management ---

const (
	// PageSize is the size of every on-disk block and every buffer pool frame.
	PageSize = 4096

	// InvalidPageID marks an unset or unallocated page id.
	InvalidPageID PageID = -1

	// IndexRootsPageID is the logical page reserved for the index roots registry.
	// It is the first page allocated in every database file.
	IndexRootsPageID PageID = 0
)

// PageID represents a logical page number. Logical ids skip the meta page
// and the bitmap pages of the file layout.
type PageID int32

// IsValid reports whether id refers to a real logical page.
func (id PageID) IsValid() bool { return id >= 0 }

// Page represents an in-memory copy of a disk page held in a buffer pool frame.
type Page struct {
	id       PageID
	data     []byte
	pinCount int32
	isDirty  bool

	// latch protects the in-memory bytes of this page. It is independent of
	// the pin count, which only keeps the frame from being evicted.
	latch sync.RWMutex
}

// NewPage creates a new Page instance.
func NewPage(id PageID, size int) *Page {
	return &Page{
		id:   id,
		data: make([]byte, size),
	}
}

// Reset clears metadata and zeroes the data so a frame can be reused.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	clear(p.data)
}

func (p *Page) GetData() []byte     { return p.data }
func (p *Page) GetPageID() PageID   { return p.id }
func (p *Page) SetPageID(id PageID) { p.id = id }
func (p *Page) IsDirty() bool       { return p.isDirty }
func (p *Page) SetDirty(dirty bool) { p.isDirty = dirty }
func (p *Page) Pin()                { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() int32 { return p.pinCount }

// --- Latch Methods ---

// RLock acquires a read (shared) latch on the page.
func (p *Page) RLock() {
	p.latch.RLock()
}

// RUnlock releases a read (shared) latch on the page.
func (p *Page) RUnlock() {
	p.latch.RUnlock()
}

// Lock acquires a write (exclusive) latch on the page.
func (p *Page) Lock() {
	p.latch.Lock()
}

// Unlock releases a write (exclusive) latch on the page.
func (p *Page) Unlock() {
	p.latch.Unlock()
}
