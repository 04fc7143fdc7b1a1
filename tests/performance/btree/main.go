package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sushant-115/minisql/core/indexmanager"
	storageengine "github.com/sushant-115/minisql/core/storage_engine"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/pkg/logger"
)

func main() {
	dataDir := flag.String("data-dir", filepath.Join(os.TempDir(), "minisql-perf"), "directory for the benchmark database")
	from := flag.Int("from", 9000, "first key")
	to := flag.Int("to", 11000, "last key (exclusive)")
	writers := flag.Int("writers", 20, "concurrent writers")
	readers := flag.Int("readers", 10, "concurrent readers")
	poolSize := flag.Int("pool-size", 256, "buffer pool frames")
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: "error"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zlogger.Sync() }()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		zlogger.Fatal("failed to create data dir", zap.Error(err))
	}
	dbPath := filepath.Join(*dataDir, "btree.db")
	_ = os.Remove(dbPath)

	db, err := storageengine.Open(dbPath, storageengine.Options{PoolSize: *poolSize, Logger: zlogger})
	if err != nil {
		zlogger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zlogger.Error("failed to close database", zap.Error(err))
		}
	}()

	keySchema := record.NewSchema(record.NewColumn("k", record.TypeInt, 0, false, true))
	idx, err := db.OpenIndex(1, "perf_idx", keySchema)
	if err != nil {
		zlogger.Fatal("failed to open index", zap.Error(err))
	}

	ctx := context.Background()
	d, failed := write(ctx, idx, *from, *to, *writers, zlogger)
	report("write", *to-*from, d, failed)
	d, failed = read(ctx, idx, *from, *to, *readers, zlogger)
	report("read", *to-*from, d, failed)

	st := db.BufferPool().Stats()
	fmt.Printf("buffer pool: hits=%d misses=%d evictions=%d flushes=%d\n", st.Hits, st.Misses, st.Evictions, st.Flushes)
}

func report(phase string, n int, d time.Duration, failed int64) {
	fmt.Printf("%-5s %d keys in %s (%.0f ops/s), %d failed\n",
		phase, n, d.Round(time.Millisecond), float64(n)/d.Seconds(), failed)
}

func keyOf(i int) *record.Row { return record.NewRow(record.NewIntField(int32(i))) }

func ridOf(i int) record.RowID { return record.RowID{PageID: 1, Slot: uint32(i)} }

func read(ctx context.Context, idx *indexmanager.BPlusTreeIndex, from, to, maxWorkers int, zlogger *zap.Logger) (time.Duration, int64) {
	var failed atomic.Int64
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, maxWorkers)
	start := time.Now()
	for i := from; i < to; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			rids, err := idx.ScanKey(ctx, keyOf(i), indexmanager.OpEqual, nil)
			if err != nil {
				failed.Add(1)
				zlogger.Error("search failed", zap.Int("key", i), zap.Error(err))
				return
			}
			if len(rids) != 1 || rids[0] != ridOf(i) {
				failed.Add(1)
				zlogger.Error("value mismatch", zap.Int("key", i), zap.Any("rids", rids))
			}
		}()
	}
	wg.Wait()
	return time.Since(start), failed.Load()
}

func write(ctx context.Context, idx *indexmanager.BPlusTreeIndex, from, to, maxWorkers int, zlogger *zap.Logger) (time.Duration, int64) {
	var failed atomic.Int64
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, maxWorkers)
	start := time.Now()
	for i := from; i < to; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := idx.InsertEntry(ctx, keyOf(i), ridOf(i), nil); err != nil {
				failed.Add(1)
				zlogger.Error("insert failed", zap.Int("key", i), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return time.Since(start), failed.Load()
}
