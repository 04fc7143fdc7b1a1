package flushmanager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	"github.com/sushant-115/minisql/internal/sys"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"go.uber.org/zap"
)

// --- DiskManager ---

const metaPhysicalPageID = 0

// DiskManager maps logical page ids onto the extent layout of a single file
// and performs page-sized reads and writes against it.
//
// File layout:
//
//	| meta | bitmap 0 | BitmapSize data pages | bitmap 1 | BitmapSize data pages | ...
type DiskManager struct {
	filePath string
	file     *os.File
	// meta mirrors physical page 0 and is written back on every allocation change.
	meta   []byte
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

// NewDiskManager opens filePath, creating and initializing it if it does not exist.
func NewDiskManager(filePath string, logger *zap.Logger) (*DiskManager, error) {
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening file %s: %v", ErrIO, filePath, err)
	}
	if err := sys.LockFile(file); err != nil {
		file.Close()
		if errors.Is(err, sys.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrDBFileLocked, filePath)
		}
		return nil, fmt.Errorf("%w: locking file %s: %v", ErrIO, filePath, err)
	}

	dm := &DiskManager{
		filePath: filePath,
		file:     file,
		meta:     make([]byte, pagemanager.PageSize),
		logger:   logging.Component(logger, "disk_manager"),
	}

	if err := dm.readPhysicalPage(metaPhysicalPageID, dm.meta); err != nil {
		dm.closeFile()
		return nil, err
	}
	meta := diskFileMetaPage{data: dm.meta}
	switch meta.magic() {
	case DiskMagic:
	case 0:
		if meta.numAllocatedPages() != 0 || meta.numExtents() != 0 {
			dm.closeFile()
			return nil, fmt.Errorf("%w: meta page of %s has counters but no magic", ErrInvalidPageData, filePath)
		}
		meta.setMagic(DiskMagic)
		if err := dm.writePhysicalPage(metaPhysicalPageID, dm.meta); err != nil {
			dm.closeFile()
			return nil, err
		}
		dm.logger.Info("initialized new database file", zap.String("path", filePath))
	default:
		dm.closeFile()
		return nil, fmt.Errorf("%w: bad magic 0x%x in %s", ErrInvalidPageData, meta.magic(), filePath)
	}

	if osPage := sys.GetSysPageSize(); osPage > 0 && pagemanager.PageSize%osPage != 0 {
		dm.logger.Warn("page size is not a multiple of the OS page size",
			zap.Int("page_size", pagemanager.PageSize), zap.Int("os_page_size", osPage))
	}
	dm.logger.Debug("disk manager opened",
		zap.String("path", filePath),
		zap.Uint32("allocated_pages", meta.numAllocatedPages()),
		zap.Uint32("extents", meta.numExtents()),
	)
	return dm, nil
}

// FilePath returns the path of the backing file.
func (dm *DiskManager) FilePath() string { return dm.filePath }

// ReadPage reads the logical page into pageData. Never-written pages read as zeroes.
func (dm *DiskManager) ReadPage(pageID pagemanager.PageID, pageData []byte) error {
	if !pageID.IsValid() {
		return fmt.Errorf("%w: read of invalid page id %d", ErrIO, pageID)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return fmt.Errorf("%w: file %s is closed", ErrIO, dm.filePath)
	}
	return dm.readPhysicalPage(MapPageID(pageID), pageData)
}

// WritePage writes pageData to the logical page's location.
func (dm *DiskManager) WritePage(pageID pagemanager.PageID, pageData []byte) error {
	if !pageID.IsValid() {
		return fmt.Errorf("%w: write of invalid page id %d", ErrIO, pageID)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return fmt.Errorf("%w: file %s is closed", ErrIO, dm.filePath)
	}
	return dm.writePhysicalPage(MapPageID(pageID), pageData)
}

// AllocatePage takes the first free page of the first extent with spare
// capacity. The meta page and the bitmap page are written back before it returns.
func (dm *DiskManager) AllocatePage() (pagemanager.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: file %s is closed", ErrIO, dm.filePath)
	}

	meta := diskFileMetaPage{data: dm.meta}
	extent := uint32(0)
	for extent < meta.numExtents() && meta.extentUsedPage(extent) >= BitmapSize {
		extent++
	}
	if extent >= MaxExtents {
		dm.logger.Error("no free extent left", zap.Uint32("extents", meta.numExtents()))
		return pagemanager.InvalidPageID, ErrOutOfSpace
	}

	bitmapData := make([]byte, pagemanager.PageSize)
	if err := dm.readPhysicalPage(bitmapPhysicalPageID(extent), bitmapData); err != nil {
		return pagemanager.InvalidPageID, err
	}
	bitmap := NewBitmapPage(bitmapData)
	offset, ok := bitmap.AllocatePage()
	if !ok {
		// Counter said there was room but the bitmap disagrees.
		return pagemanager.InvalidPageID, fmt.Errorf("%w: bitmap of extent %d is full but counter is %d",
			ErrInvalidPageData, extent, meta.extentUsedPage(extent))
	}
	if extent == meta.numExtents() {
		meta.setNumExtents(extent + 1)
	}
	meta.setExtentUsedPage(extent, meta.extentUsedPage(extent)+1)
	meta.setNumAllocatedPages(meta.numAllocatedPages() + 1)

	if err := dm.writePhysicalPage(bitmapPhysicalPageID(extent), bitmapData); err != nil {
		return pagemanager.InvalidPageID, err
	}
	if err := dm.writePhysicalPage(metaPhysicalPageID, dm.meta); err != nil {
		return pagemanager.InvalidPageID, err
	}

	pageID := pagemanager.PageID(extent*BitmapSize + offset)
	dm.logger.Debug("allocated page", zap.Int32("page_id", int32(pageID)), zap.Uint32("extent", extent))
	return pageID, nil
}

// DeAllocatePage clears the page's bit in its extent bitmap. The data page
// itself is left untouched. Freeing a page that is not allocated is a caller
// bug and is reported as ErrPageNotAllocated.
func (dm *DiskManager) DeAllocatePage(pageID pagemanager.PageID) error {
	if !pageID.IsValid() {
		return fmt.Errorf("%w: invalid page id %d", ErrPageNotAllocated, pageID)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return fmt.Errorf("%w: file %s is closed", ErrIO, dm.filePath)
	}

	meta := diskFileMetaPage{data: dm.meta}
	extent, offset := splitPageID(pageID)
	if extent >= meta.numExtents() {
		dm.logger.Error("deallocate of page outside allocated extents", zap.Int32("page_id", int32(pageID)))
		return fmt.Errorf("%w: page %d", ErrPageNotAllocated, pageID)
	}

	bitmapData := make([]byte, pagemanager.PageSize)
	if err := dm.readPhysicalPage(bitmapPhysicalPageID(extent), bitmapData); err != nil {
		return err
	}
	if !NewBitmapPage(bitmapData).DeAllocatePage(offset) {
		dm.logger.Error("double free of page", zap.Int32("page_id", int32(pageID)))
		return fmt.Errorf("%w: page %d", ErrPageNotAllocated, pageID)
	}
	meta.setExtentUsedPage(extent, meta.extentUsedPage(extent)-1)
	meta.setNumAllocatedPages(meta.numAllocatedPages() - 1)

	if err := dm.writePhysicalPage(bitmapPhysicalPageID(extent), bitmapData); err != nil {
		return err
	}
	if err := dm.writePhysicalPage(metaPhysicalPageID, dm.meta); err != nil {
		return err
	}
	dm.logger.Debug("deallocated page", zap.Int32("page_id", int32(pageID)))
	return nil
}

// IsPageFree reports whether the logical page is unallocated.
func (dm *DiskManager) IsPageFree(pageID pagemanager.PageID) (bool, error) {
	if !pageID.IsValid() {
		return false, fmt.Errorf("%w: invalid page id %d", ErrIO, pageID)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return false, fmt.Errorf("%w: file %s is closed", ErrIO, dm.filePath)
	}

	extent, offset := splitPageID(pageID)
	if extent >= (diskFileMetaPage{data: dm.meta}).numExtents() {
		return true, nil
	}
	bitmapData := make([]byte, pagemanager.PageSize)
	if err := dm.readPhysicalPage(bitmapPhysicalPageID(extent), bitmapData); err != nil {
		return false, err
	}
	return NewBitmapPage(bitmapData).IsPageFree(offset), nil
}

// NumAllocatedPages returns the number of allocated logical pages.
func (dm *DiskManager) NumAllocatedPages() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return diskFileMetaPage{data: dm.meta}.numAllocatedPages()
}

// NumExtents returns the number of extents that have ever held a page.
func (dm *DiskManager) NumExtents() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return diskFileMetaPage{data: dm.meta}.numExtents()
}

// ExtentUsedPages returns the allocation counter of one extent.
func (dm *DiskManager) ExtentUsedPages(extent uint32) uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if extent >= MaxExtents {
		return 0
	}
	return diskFileMetaPage{data: dm.meta}.extentUsedPage(extent)
}

// Sync flushes all buffered data to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, dm.filePath, err)
	}
	return nil
}

// Close writes back the meta page, syncs and releases the file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	var errs []error
	if err := dm.writePhysicalPage(metaPhysicalPageID, dm.meta); err != nil {
		errs = append(errs, err)
	}
	if err := dm.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("%w: syncing %s: %v", ErrIO, dm.filePath, err))
	}
	if err := dm.closeFile(); err != nil {
		errs = append(errs, err)
	}
	dm.logger.Debug("disk manager closed", zap.String("path", dm.filePath))
	return errors.Join(errs...)
}

func (dm *DiskManager) closeFile() error {
	dm.closed = true
	if err := sys.UnlockFile(dm.file); err != nil {
		dm.logger.Warn("failed to unlock database file", zap.Error(err))
	}
	if err := dm.file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, dm.filePath, err)
	}
	return nil
}

// readPhysicalPage must be called with dm.mu held (or before dm is shared).
func (dm *DiskManager) readPhysicalPage(physicalID int64, pageData []byte) error {
	if len(pageData) != pagemanager.PageSize {
		return fmt.Errorf("%w: page buffer size %d != %d", ErrIO, len(pageData), pagemanager.PageSize)
	}
	offset := physicalID * pagemanager.PageSize
	n, err := dm.file.ReadAt(pageData, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reading physical page %d at offset %d: %v", ErrIO, physicalID, offset, err)
	}
	if n < len(pageData) {
		// Past the end of the file: the page was never written.
		clear(pageData[n:])
	}
	return nil
}

// writePhysicalPage must be called with dm.mu held (or before dm is shared).
func (dm *DiskManager) writePhysicalPage(physicalID int64, pageData []byte) error {
	if len(pageData) != pagemanager.PageSize {
		return fmt.Errorf("%w: page buffer size %d != %d", ErrIO, len(pageData), pagemanager.PageSize)
	}
	offset := physicalID * pagemanager.PageSize
	if _, err := dm.file.WriteAt(pageData, offset); err != nil {
		return fmt.Errorf("%w: writing physical page %d at offset %d: %v", ErrIO, physicalID, offset, err)
	}
	return nil
}

// MapPageID converts a logical page id to its physical page number: one meta
// page, plus one bitmap page for every extent up to and including the page's own.
func MapPageID(pageID pagemanager.PageID) int64 {
	logical := int64(pageID)
	return logical + 1 + (logical/BitmapSize + 1)
}

func bitmapPhysicalPageID(extent uint32) int64 {
	return 1 + int64(extent)*(BitmapSize+1)
}

func splitPageID(pageID pagemanager.PageID) (extent, offset uint32) {
	return uint32(pageID) / BitmapSize, uint32(pageID) % BitmapSize
}
