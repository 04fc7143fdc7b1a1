package flushmanager

import (
	"encoding/binary"

	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// DiskMagic identifies a database file created by this disk manager.
const DiskMagic uint32 = 0x6D53514C

const (
	metaHeaderSize = 12

	// MaxExtents is bounded by how many per-extent counters fit in the meta page.
	MaxExtents = (pagemanager.PageSize - metaHeaderSize) / 4
)

// diskFileMetaPage is a view over physical page 0.
//
// Layout:
//
//	[0:4)   magic
//	[4:8)   num_allocated_pages
//	[8:12)  num_extents
//	[12:)   extent_used_page[MaxExtents]
type diskFileMetaPage struct {
	data []byte
}

func (m diskFileMetaPage) magic() uint32             { return binary.LittleEndian.Uint32(m.data[0:4]) }
func (m diskFileMetaPage) setMagic(v uint32)         { binary.LittleEndian.PutUint32(m.data[0:4], v) }
func (m diskFileMetaPage) numAllocatedPages() uint32 { return binary.LittleEndian.Uint32(m.data[4:8]) }
func (m diskFileMetaPage) setNumAllocatedPages(v uint32) {
	binary.LittleEndian.PutUint32(m.data[4:8], v)
}
func (m diskFileMetaPage) numExtents() uint32     { return binary.LittleEndian.Uint32(m.data[8:12]) }
func (m diskFileMetaPage) setNumExtents(v uint32) { binary.LittleEndian.PutUint32(m.data[8:12], v) }

func (m diskFileMetaPage) extentUsedPage(extent uint32) uint32 {
	off := metaHeaderSize + 4*extent
	return binary.LittleEndian.Uint32(m.data[off : off+4])
}

func (m diskFileMetaPage) setExtentUsedPage(extent, used uint32) {
	off := metaHeaderSize + 4*extent
	binary.LittleEndian.PutUint32(m.data[off:off+4], used)
}
