package memtable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	commonutils "github.com/sushant-115/minisql/internal/common_utils"
	internaltelemetry "github.com/sushant-115/minisql/internal/telemetry"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"go.uber.org/zap"
)

// BufferPoolManager manages in-memory pages (frames) and interacts with the DiskManager.
// Free frames are always used before asking the replacer for a victim.
type BufferPoolManager struct {
	diskManager *flushmanager.DiskManager
	poolSize    int
	pages       []*pagemanager.Page        // Page frames
	pageTable   map[pagemanager.PageID]int // PageID to frame index
	freeList    []int                      // Frames holding no page
	replacer    Replacer
	mu          sync.Mutex
	logger      *zap.Logger
	metrics     *internaltelemetry.BufferPoolMetrics
	stats       Stats
}

// Stats is a snapshot of buffer pool activity counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// NewBufferPoolManager creates and initializes a new BufferPoolManager.
// metrics may be nil.
func NewBufferPoolManager(poolSize int, diskManager *flushmanager.DiskManager, replacer Replacer,
	logger *zap.Logger, metrics *internaltelemetry.BufferPoolMetrics) *BufferPoolManager {
	if diskManager == nil {
		panic("NewBufferPoolManager: diskManager cannot be nil")
	}
	if replacer == nil {
		replacer = NewLRUReplacer(poolSize)
	}
	bpm := &BufferPoolManager{
		diskManager: diskManager,
		poolSize:    poolSize,
		pages:       make([]*pagemanager.Page, poolSize),
		pageTable:   make(map[pagemanager.PageID]int, poolSize),
		freeList:    make([]int, 0, poolSize),
		replacer:    replacer,
		logger:      logging.Component(logger, "buffer_pool"),
		metrics:     metrics,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = pagemanager.NewPage(pagemanager.InvalidPageID, pagemanager.PageSize)
		bpm.freeList = append(bpm.freeList, i)
	}
	bpm.logger.Info("buffer pool initialized", zap.Int("pool_size", poolSize))
	return bpm
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int { return bpm.poolSize }

// DiskManager returns the disk manager backing this pool.
func (bpm *BufferPoolManager) DiskManager() *flushmanager.DiskManager { return bpm.diskManager }

// Stats returns a snapshot of the activity counters.
func (bpm *BufferPoolManager) Stats() Stats {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.stats
}

// FetchPage retrieves a page from the buffer pool. If not present, it fetches from disk.
// The returned page is pinned; every successful call must be paired with UnpinPage.
func (bpm *BufferPoolManager) FetchPage(pageID pagemanager.PageID) (*pagemanager.Page, error) {
	if !pageID.IsValid() {
		return nil, fmt.Errorf("%w: invalid page id %d", flushmanager.ErrPageNotFound, pageID)
	}
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	// 1. Check if page is already in the buffer pool
	if frameIdx, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameIdx]
		bpm.pinInternal(page, frameIdx)
		bpm.stats.Hits++
		bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.HitsCounter.Add(ctx, 1) })
		bpm.logger.Debug("page hit", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", frameIdx),
			zap.Int32("pin_count", page.GetPinCount()))
		return page, nil
	}

	// 2. Page not in pool, take a free frame or a victim
	frameIdx, err := bpm.acquireFrameInternal()
	if err != nil {
		return nil, err
	}
	page := bpm.pages[frameIdx]

	// 3. Load new page data from disk
	if err := bpm.diskManager.ReadPage(pageID, page.GetData()); err != nil {
		// The frame is empty and untracked; give it back.
		page.Reset()
		bpm.freeList = append(bpm.freeList, frameIdx)
		return nil, fmt.Errorf("failed to read page %d from disk: %w", pageID, err)
	}

	// 4. Update new page metadata and track in buffer pool
	page.SetPageID(pageID)
	page.SetDirty(false)
	bpm.pageTable[pageID] = frameIdx
	bpm.pinInternal(page, frameIdx)
	bpm.stats.Misses++
	bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.MissesCounter.Add(ctx, 1) })
	bpm.logger.Debug("page loaded", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", frameIdx))
	return page, nil
}

// NewPage allocates a new page on disk and pins a zeroed frame for it.
func (bpm *BufferPoolManager) NewPage() (*pagemanager.Page, pagemanager.PageID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	// 1. Take a frame first so a full pool does not leak a disk page
	frameIdx, err := bpm.acquireFrameInternal()
	if err != nil {
		return nil, pagemanager.InvalidPageID, err
	}
	page := bpm.pages[frameIdx]

	// 2. Allocate the logical page
	pageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		bpm.freeList = append(bpm.freeList, frameIdx)
		return nil, pagemanager.InvalidPageID, fmt.Errorf("failed to allocate new page: %w", err)
	}

	// 3. Install it; the frame is already zeroed by acquireFrameInternal
	page.SetPageID(pageID)
	page.SetDirty(true)
	bpm.pageTable[pageID] = frameIdx
	bpm.pinInternal(page, frameIdx)
	bpm.logger.Debug("new page", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", frameIdx))
	return page, pageID, nil
}

// UnpinPage decrements the pin count for a page. A dirty flag, once set, stays
// set until the page is flushed.
func (bpm *BufferPoolManager) UnpinPage(pageID pagemanager.PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotFound, pageID)
	}
	page := bpm.pages[frameIdx]
	if page.GetPinCount() <= 0 {
		bpm.logger.Error("unpin of page with pin count 0",
			zap.Int32("page_id", int32(pageID)),
			zap.String("caller", commonutils.Caller(1)),
		)
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotPinned, pageID)
	}
	if isDirty {
		page.SetDirty(true)
	}
	page.Unpin()
	if page.GetPinCount() == 0 {
		bpm.replacer.Unpin(frameIdx)
		bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.PinnedFramesUpDown.Add(ctx, -1) })
	}
	return nil
}

// FlushPage writes a resident page to disk regardless of its pin count.
func (bpm *BufferPoolManager) FlushPage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotFound, pageID)
	}
	return bpm.flushFrameInternal(bpm.pages[frameIdx])
}

// FlushAllPages writes every resident page to disk.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var errs []error
	for _, frameIdx := range bpm.pageTable {
		if err := bpm.flushFrameInternal(bpm.pages[frameIdx]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeletePage drops a page from the pool and frees it on disk. A pinned page
// is refused with ErrPagePinned. A page that is not resident is only freed on disk.
func (bpm *BufferPoolManager) DeletePage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		free, err := bpm.diskManager.IsPageFree(pageID)
		if err != nil || free {
			return err
		}
		return bpm.diskManager.DeAllocatePage(pageID)
	}
	page := bpm.pages[frameIdx]
	if page.GetPinCount() > 0 {
		return fmt.Errorf("%w: page %d has pin count %d", flushmanager.ErrPagePinned, pageID, page.GetPinCount())
	}

	delete(bpm.pageTable, pageID)
	bpm.replacer.Pin(frameIdx)
	page.Reset()
	bpm.freeList = append(bpm.freeList, frameIdx)
	bpm.logger.Debug("deleted page", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", frameIdx))
	return bpm.diskManager.DeAllocatePage(pageID)
}

// CheckAllUnpinned reports whether every frame has pin count zero.
func (bpm *BufferPoolManager) CheckAllUnpinned() bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	allUnpinned := true
	for pageID, frameIdx := range bpm.pageTable {
		if pins := bpm.pages[frameIdx].GetPinCount(); pins != 0 {
			bpm.logger.Warn("page still pinned", zap.Int32("page_id", int32(pageID)), zap.Int32("pin_count", pins))
			allUnpinned = false
		}
	}
	return allUnpinned
}

// acquireFrameInternal returns an empty, reset frame taken from the free list
// or, failing that, from the replacer. The victim's old page is flushed if dirty
// and unmapped. This method MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) acquireFrameInternal() (int, error) {
	if n := len(bpm.freeList); n > 0 {
		frameIdx := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameIdx, nil
	}

	frameIdx, ok := bpm.replacer.Victim()
	if !ok {
		bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.FullPoolErrorCounter.Add(ctx, 1) })
		bpm.logger.Debug("buffer pool is full, all pages are pinned")
		return -1, flushmanager.ErrBufferPoolFull
	}
	victim := bpm.pages[frameIdx]
	if victim.GetPinCount() != 0 {
		// The replacer must only hold unpinned frames.
		panic(fmt.Sprintf("replacer returned frame %d holding pinned page %d", frameIdx, victim.GetPageID()))
	}

	if victim.IsDirty() {
		if err := bpm.flushFrameInternal(victim); err != nil {
			// Put it back so it can be retried later.
			bpm.replacer.Unpin(frameIdx)
			return -1, fmt.Errorf("failed to flush dirty victim page %d: %w", victim.GetPageID(), err)
		}
	}
	bpm.logger.Debug("evicting page", zap.Int32("page_id", int32(victim.GetPageID())), zap.Int("frame_id", frameIdx))
	delete(bpm.pageTable, victim.GetPageID())
	victim.Reset()
	bpm.stats.Evictions++
	bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.EvictionsCounter.Add(ctx, 1) })
	return frameIdx, nil
}

// flushFrameInternal MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) flushFrameInternal(page *pagemanager.Page) error {
	if err := bpm.diskManager.WritePage(page.GetPageID(), page.GetData()); err != nil {
		return err
	}
	page.SetDirty(false)
	bpm.stats.Flushes++
	bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.FlushesCounter.Add(ctx, 1) })
	return nil
}

func (bpm *BufferPoolManager) pinInternal(page *pagemanager.Page, frameIdx int) {
	if page.GetPinCount() == 0 {
		bpm.record(func(ctx context.Context, m *internaltelemetry.BufferPoolMetrics) { m.PinnedFramesUpDown.Add(ctx, 1) })
	}
	page.Pin()
	bpm.replacer.Pin(frameIdx)
}

func (bpm *BufferPoolManager) record(fn func(context.Context, *internaltelemetry.BufferPoolMetrics)) {
	if bpm.metrics != nil {
		fn(context.Background(), bpm.metrics)
	}
}
