// Package storageengine ties the disk manager, buffer pool, table heaps and
// indexes of one database file together.
package storageengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sushant-115/minisql/core/indexing/btree"
	"github.com/sushant-115/minisql/core/indexmanager"
	"github.com/sushant-115/minisql/core/storage_engine/common"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	tableheap "github.com/sushant-115/minisql/core/storage_engine/table_heap"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/minisql/internal/telemetry"
	"github.com/sushant-115/minisql/pkg/config"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"github.com/sushant-115/minisql/pkg/telemetry"
	"go.uber.org/zap"
)

// Options configures every database opened by an engine or a registry.
type Options struct {
	PoolSize             int
	Replacer             memtable.ReplacerType
	Index                indexmanager.BPlusTreeIndexOptions
	BackupBytesPerSecond int64
	LockManager          transaction.LockManager
	Telemetry            *telemetry.Telemetry
	Logger               *zap.Logger
}

// DefaultPoolSize is used when Options.PoolSize is unset.
const DefaultPoolSize = 1024

// OptionsFromConfig maps the YAML configuration onto engine options.
func OptionsFromConfig(cfg config.Config, tel *telemetry.Telemetry, logger *zap.Logger) Options {
	return Options{
		PoolSize: cfg.BufferPool.Size,
		Replacer: memtable.ReplacerType(cfg.BufferPool.Replacer),
		Index: indexmanager.BPlusTreeIndexOptions{
			LeafMaxSize:     cfg.Index.LeafMaxSize,
			InternalMaxSize: cfg.Index.InternalMaxSize,
		},
		BackupBytesPerSecond: cfg.Backup.BytesPerSecond,
		Telemetry:            tel,
		Logger:               logger,
	}
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.LockManager == nil {
		o.LockManager = transaction.NoopLockManager{}
	}
	if o.Telemetry == nil {
		o.Telemetry = telemetry.Noop()
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// DBStorageEngine owns one open database file.
type DBStorageEngine struct {
	path   string
	opts   Options
	dm     *flushmanager.DiskManager
	bpm    *memtable.BufferPoolManager
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the database at path, creating and formatting it if needed.
func Open(path string, opts Options) (*DBStorageEngine, error) {
	opts = opts.withDefaults()
	logger := logging.Component(opts.Logger, "storage_engine", zap.String("path", path))

	replacer, err := memtable.NewReplacer(opts.Replacer, opts.PoolSize)
	if err != nil {
		return nil, err
	}
	metrics, err := internaltelemetry.NewBufferPoolMetrics(opts.Telemetry.Meter)
	if err != nil {
		logger.Warn("failed to create buffer pool metrics", zap.Error(err))
		metrics = nil
	}

	dm, err := flushmanager.NewDiskManager(path, opts.Logger)
	if err != nil {
		return nil, err
	}
	fresh := dm.NumAllocatedPages() == 0
	bpm := memtable.NewBufferPoolManager(opts.PoolSize, dm, replacer, opts.Logger, metrics)
	if err := btree.EnsureIndexRootsPage(bpm); err != nil {
		return nil, errors.Join(err, dm.Close())
	}

	logger.Info("database opened",
		zap.Bool("created", fresh),
		zap.Uint32("allocated_pages", dm.NumAllocatedPages()),
		zap.Int("pool_size", opts.PoolSize),
	)
	return &DBStorageEngine{path: path, opts: opts, dm: dm, bpm: bpm, logger: logger}, nil
}

func (e *DBStorageEngine) Path() string                            { return e.path }
func (e *DBStorageEngine) BufferPool() *memtable.BufferPoolManager { return e.bpm }
func (e *DBStorageEngine) DiskManager() *flushmanager.DiskManager  { return e.dm }

// CreateTableHeap allocates a new, empty table heap.
func (e *DBStorageEngine) CreateTableHeap(schema *record.Schema) (*tableheap.TableHeap, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return tableheap.NewTableHeap(e.bpm, schema, e.opts.LockManager, e.opts.Logger)
}

// OpenTableHeap attaches to the heap whose chain starts at firstPageID.
func (e *DBStorageEngine) OpenTableHeap(firstPageID pagemanager.PageID, schema *record.Schema) (*tableheap.TableHeap, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return tableheap.OpenTableHeap(e.bpm, firstPageID, schema, e.opts.LockManager, e.opts.Logger), nil
}

// OpenIndex opens the B+ tree index registered under indexID, creating it
// empty if it does not exist yet.
func (e *DBStorageEngine) OpenIndex(indexID uint32, name string, keySchema *record.Schema) (*indexmanager.BPlusTreeIndex, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return indexmanager.NewBPlusTreeIndex(indexID, name, keySchema, e.bpm, e.opts.Index, e.opts.Telemetry, e.opts.Logger)
}

// Flush writes every dirty page back and syncs the file.
func (e *DBStorageEngine) Flush() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.bpm.FlushAllPages(); err != nil {
		return err
	}
	return e.dm.Sync()
}

// Backup flushes the database and copies its file to dstPath, throttled to
// Options.BackupBytesPerSecond. Writes made while the copy runs may be
// missing from the backup.
func (e *DBStorageEngine) Backup(ctx context.Context, dstPath string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, flushmanager.ErrDatabaseNotOpen
	}
	if err := e.bpm.FlushAllPages(); err != nil {
		return 0, err
	}
	if err := e.dm.Sync(); err != nil {
		return 0, err
	}
	n, err := common.CopyThrottled(ctx, e.dm.FilePath(), dstPath, e.opts.BackupBytesPerSecond, true)
	if err != nil {
		return n, fmt.Errorf("backup to %s failed: %w", dstPath, err)
	}
	e.logger.Info("backup completed", zap.String("destination", dstPath), zap.Int64("bytes", n))
	return n, nil
}

// Close flushes all pages and releases the file. Pages that are still pinned
// are reported as ErrPagesStillPinned after the file is closed.
func (e *DBStorageEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.bpm.FlushAllPages(); err != nil {
		errs = append(errs, err)
	}
	if !e.bpm.CheckAllUnpinned() {
		e.logger.Error("closing database with pinned pages")
		errs = append(errs, flushmanager.ErrPagesStillPinned)
	}
	if err := e.dm.Close(); err != nil {
		errs = append(errs, err)
	}
	e.logger.Info("database closed", zap.Any("buffer_pool_stats", e.bpm.Stats()))
	return errors.Join(errs...)
}

func (e *DBStorageEngine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: %s", flushmanager.ErrDatabaseNotOpen, e.path)
	}
	return nil
}
