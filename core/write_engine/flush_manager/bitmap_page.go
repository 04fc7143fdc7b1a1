package flushmanager

import (
	"encoding/binary"

	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

const (
	bitmapHeaderSize = 8

	// BitmapSize is the number of data pages one bitmap page can track,
	// and therefore the number of data pages in one extent.
	BitmapSize = (pagemanager.PageSize - bitmapHeaderSize) * 8
)

// BitmapPage is a view over the first page of an extent.
//
// Layout:
//
//	[0:4)  page_allocated  number of set bits
//	[4:8)  next_free_page  lowest-known free offset, BitmapSize when full
//	[8:)   one bit per data page, 1 = allocated, most significant bit first
type BitmapPage struct {
	data []byte
}

// NewBitmapPage wraps a page-sized buffer. A zeroed buffer is an empty bitmap.
func NewBitmapPage(data []byte) BitmapPage {
	return BitmapPage{data: data}
}

func (b BitmapPage) PageAllocated() uint32 { return binary.LittleEndian.Uint32(b.data[0:4]) }
func (b BitmapPage) NextFreePage() uint32  { return binary.LittleEndian.Uint32(b.data[4:8]) }

func (b BitmapPage) setPageAllocated(n uint32) { binary.LittleEndian.PutUint32(b.data[0:4], n) }
func (b BitmapPage) setNextFreePage(n uint32)  { binary.LittleEndian.PutUint32(b.data[4:8], n) }

// AllocatePage marks the next free offset as allocated and returns it.
// It returns false when every page in the extent is in use.
func (b BitmapPage) AllocatePage() (uint32, bool) {
	if b.PageAllocated() >= BitmapSize {
		return 0, false
	}
	offset := b.NextFreePage()
	if offset >= BitmapSize || !b.IsPageFree(offset) {
		// next_free_page is only a hint; recover by scanning.
		var ok bool
		if offset, ok = b.findFree(0); !ok {
			return 0, false
		}
	}
	b.setBit(offset)
	b.setPageAllocated(b.PageAllocated() + 1)
	next, ok := b.findFree(offset + 1)
	if !ok {
		next = BitmapSize
	}
	b.setNextFreePage(next)
	return offset, true
}

// DeAllocatePage clears the bit for offset. It returns false if the page
// was already free.
func (b BitmapPage) DeAllocatePage(offset uint32) bool {
	if offset >= BitmapSize || b.IsPageFree(offset) {
		return false
	}
	b.clearBit(offset)
	b.setPageAllocated(b.PageAllocated() - 1)
	if offset < b.NextFreePage() {
		b.setNextFreePage(offset)
	}
	return true
}

// IsPageFree reports whether the bit for offset is clear.
func (b BitmapPage) IsPageFree(offset uint32) bool {
	if offset >= BitmapSize {
		return false
	}
	byteIndex, mask := bitPosition(offset)
	return b.data[bitmapHeaderSize+byteIndex]&mask == 0
}

func (b BitmapPage) setBit(offset uint32) {
	byteIndex, mask := bitPosition(offset)
	b.data[bitmapHeaderSize+byteIndex] |= mask
}

func (b BitmapPage) clearBit(offset uint32) {
	byteIndex, mask := bitPosition(offset)
	b.data[bitmapHeaderSize+byteIndex] &^= mask
}

// findFree returns the first free offset at or after start, wrapping once.
func (b BitmapPage) findFree(start uint32) (uint32, bool) {
	if start >= BitmapSize {
		start = 0
	}
	if offset, ok := b.scanFree(start, BitmapSize); ok {
		return offset, true
	}
	return b.scanFree(0, start)
}

func (b BitmapPage) scanFree(from, to uint32) (uint32, bool) {
	bits := b.data[bitmapHeaderSize:]
	for offset := from; offset < to; {
		byteIndex, _ := bitPosition(offset)
		// Whole byte in use: jump to the next byte boundary.
		if offset%8 == 0 && bits[byteIndex] == 0xFF {
			offset += 8
			continue
		}
		if b.IsPageFree(offset) {
			return offset, true
		}
		offset++
	}
	return 0, false
}

func bitPosition(offset uint32) (uint32, byte) {
	return offset / 8, byte(0x80) >> (offset % 8)
}
