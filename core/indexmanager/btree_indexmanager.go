package indexmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/sushant-115/minisql/core/indexing/btree"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	internaltelemetry "github.com/sushant-115/minisql/internal/telemetry"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"github.com/sushant-115/minisql/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// BPlusTreeIndex is a unique index stored in a B+ tree. Key rows are
// serialized into fixed-width keys sized from the key schema.
type BPlusTreeIndex struct {
	name      string
	keySchema *record.Schema
	keySize   int
	tree      *btree.BPlusTree
	cmp       btree.KeyComparator

	tracer  trace.Tracer
	metrics *internaltelemetry.IndexMetrics
	logger  *zap.Logger
}

// BPlusTreeIndexOptions tunes node fan-out. Zero sizes use the page capacity.
type BPlusTreeIndexOptions struct {
	LeafMaxSize     int
	InternalMaxSize int
}

// NewBPlusTreeIndex opens (or creates on first insert) the index registered
// under indexID in the index roots page. tel may be nil.
func NewBPlusTreeIndex(indexID uint32, name string, keySchema *record.Schema, bpm *memtable.BufferPoolManager,
	opts BPlusTreeIndexOptions, tel *telemetry.Telemetry, logger *zap.Logger) (*BPlusTreeIndex, error) {
	logger = logging.OrNop(logger)
	keySize, err := btree.KeySizeFor(keySchema.MaxSerializedSize())
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	cmp := btree.GenericComparator(keySchema)
	tree, err := btree.NewBPlusTree(indexID, bpm, cmp, keySize, opts.LeafMaxSize, opts.InternalMaxSize, logger)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	tree.SetKeyFormatter(btree.RowKeyFormatter(keySchema))

	tracer := nooptrace.NewTracerProvider().Tracer("")
	meter := noop.NewMeterProvider().Meter("")
	if tel != nil {
		tracer, meter = tel.Tracer, tel.Meter
	}
	metrics, err := internaltelemetry.NewIndexMetrics(meter)
	if err != nil {
		logger.Warn("failed to create index metrics", zap.Error(err))
		metrics, _ = internaltelemetry.NewIndexMetrics(noop.NewMeterProvider().Meter(""))
	}

	return &BPlusTreeIndex{
		name:      name,
		keySchema: keySchema,
		keySize:   keySize,
		tree:      tree,
		cmp:       cmp,
		tracer:    tracer,
		metrics:   metrics,
		logger:    logging.Component(logger, "index", zap.String("index", name)),
	}, nil
}

func (idx *BPlusTreeIndex) Name() string              { return idx.name }
func (idx *BPlusTreeIndex) KeySchema() *record.Schema { return idx.keySchema }
func (idx *BPlusTreeIndex) KeySize() int              { return idx.keySize }

// Tree exposes the underlying B+ tree for iteration and dumps.
func (idx *BPlusTreeIndex) Tree() *btree.BPlusTree { return idx.tree }

func (idx *BPlusTreeIndex) InsertEntry(ctx context.Context, key *record.Row, rid record.RowID, txn *transaction.Transaction) (err error) {
	ctx, span, start := idx.startMetricsAndTrace(ctx, "InsertEntry")
	defer func() { idx.endMetricsAndTrace(ctx, span, start, "InsertEntry", err) }()

	k, err := btree.EncodeRowKey(key, idx.keySize)
	if err != nil {
		return err
	}
	if !idx.tree.Insert(k, rid, txn) {
		return fmt.Errorf("%w: %s in index %s", flushmanager.ErrKeyAlreadyExists, key, idx.name)
	}
	idx.logger.Debug("entry inserted", zap.Stringer("key", key), zap.Stringer("rid", rid))
	return nil
}

func (idx *BPlusTreeIndex) RemoveEntry(ctx context.Context, key *record.Row, rid record.RowID, txn *transaction.Transaction) (err error) {
	ctx, span, start := idx.startMetricsAndTrace(ctx, "RemoveEntry")
	defer func() { idx.endMetricsAndTrace(ctx, span, start, "RemoveEntry", err) }()

	k, err := btree.EncodeRowKey(key, idx.keySize)
	if err != nil {
		return err
	}
	idx.tree.Remove(k, txn)
	idx.logger.Debug("entry removed", zap.Stringer("key", key))
	return nil
}

// ScanKey collects matching RowIDs. OpEqual on an absent key fails with
// ErrKeyNotFound; the other operators return an empty result instead.
func (idx *BPlusTreeIndex) ScanKey(ctx context.Context, key *record.Row, op ScanOperator, txn *transaction.Transaction) (rids []record.RowID, err error) {
	ctx, span, start := idx.startMetricsAndTrace(ctx, "ScanKey")
	span.SetAttributes(attribute.String("index.scan_operator", op.String()))
	defer func() {
		span.SetAttributes(attribute.Int("index.scan_results", len(rids)))
		idx.endMetricsAndTrace(ctx, span, start, "ScanKey", err)
	}()

	k, err := btree.EncodeRowKey(key, idx.keySize)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpEqual:
		rid, ok := idx.tree.GetValue(k, txn)
		if !ok {
			return nil, fmt.Errorf("%w: %s in index %s", flushmanager.ErrKeyNotFound, key, idx.name)
		}
		return []record.RowID{rid}, nil
	case OpGreater, OpGreaterEqual:
		return idx.collect(idx.tree.BeginAt(k), k, op, false), nil
	case OpLess, OpLessEqual:
		return idx.collect(idx.tree.Begin(), k, op, true), nil
	case OpNotEqual:
		return idx.collect(idx.tree.Begin(), k, op, false), nil
	}
	return nil, fmt.Errorf("%w: %d", flushmanager.ErrInvalidScanOperator, int(op))
}

// collect walks from it and keeps entries matching op. With stopOnMiss the
// walk ends at the first non-matching entry.
func (idx *BPlusTreeIndex) collect(it *btree.Iterator, k []byte, op ScanOperator, stopOnMiss bool) []record.RowID {
	defer it.Close()
	var rids []record.RowID
	for ; !it.IsEnd(); _ = it.Next() {
		if !op.matches(idx.cmp(it.Key(), k)) {
			if stopOnMiss {
				break
			}
			continue
		}
		rids = append(rids, it.Value())
	}
	return rids
}

func (idx *BPlusTreeIndex) Destroy(ctx context.Context) (err error) {
	ctx, span, start := idx.startMetricsAndTrace(ctx, "Destroy")
	defer func() { idx.endMetricsAndTrace(ctx, span, start, "Destroy", err) }()

	if err = idx.tree.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy index %s: %w", idx.name, err)
	}
	return nil
}

// startMetricsAndTrace begins the telemetry recording for an index operation.
func (idx *BPlusTreeIndex) startMetricsAndTrace(ctx context.Context, operation string) (context.Context, trace.Span, time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("index.name", idx.name),
		attribute.String("index.operation", operation),
	)
	idx.metrics.ActiveOperationsUpDown.Add(ctx, 1, attrs)

	ctx, span := idx.tracer.Start(ctx, "BPlusTreeIndex."+operation, trace.WithAttributes(
		attribute.String("index.name", idx.name),
		attribute.String("index.operation", operation),
	))
	return ctx, span, time.Now()
}

// endMetricsAndTrace completes the telemetry recording for an index operation.
func (idx *BPlusTreeIndex) endMetricsAndTrace(ctx context.Context, span trace.Span, start time.Time, operation string, err error) {
	status := otelcodes.Ok
	if err != nil {
		status = otelcodes.Error
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetStatus(otelcodes.Ok, "")
	}
	span.End()

	idx.metrics.ActiveOperationsUpDown.Add(ctx, -1, metric.WithAttributes(
		attribute.String("index.name", idx.name),
		attribute.String("index.operation", operation),
	))
	attrs := attribute.NewSet(
		attribute.String("index.name", idx.name),
		attribute.String("index.operation", operation),
		attribute.String("index.status", status.String()),
	)
	idx.metrics.LatencyHistogram.Record(ctx, time.Since(start).Microseconds(), metric.WithAttributeSet(attrs))
	idx.metrics.OperationsCounter.Add(ctx, 1, metric.WithAttributeSet(attrs))
}
