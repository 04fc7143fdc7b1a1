package indexmanager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minisql/core/indexing/btree"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	"github.com/sushant-115/minisql/pkg/telemetry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

var _ Index = (*BPlusTreeIndex)(nil)

func setupBufferPool(t *testing.T) *memtable.BufferPoolManager {
	t.Helper()
	dm, err := flushmanager.NewDiskManager(filepath.Join(t.TempDir(), "index.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	bpm := memtable.NewBufferPoolManager(64, dm, nil, zap.NewNop(), nil)
	require.NoError(t, btree.EnsureIndexRootsPage(bpm))
	return bpm
}

func idSchema() *record.Schema {
	return record.NewSchema(record.NewColumn("id", record.TypeInt, 0, false, true))
}

func idKey(v int32) *record.Row { return record.NewRow(record.NewIntField(v)) }

func ridOf(v int32) record.RowID { return record.RowID{PageID: 1, Slot: uint32(v)} }

func setupIndex(t *testing.T, tel *telemetry.Telemetry) (*BPlusTreeIndex, *memtable.BufferPoolManager) {
	t.Helper()
	bpm := setupBufferPool(t)
	idx, err := NewBPlusTreeIndex(1, "pk_id", idSchema(), bpm, BPlusTreeIndexOptions{LeafMaxSize: 4, InternalMaxSize: 4}, tel, zap.NewNop())
	require.NoError(t, err)
	return idx, bpm
}

func slots(rids []record.RowID) []int32 {
	out := make([]int32, len(rids))
	for i, rid := range rids {
		out[i] = int32(rid.Slot)
	}
	return out
}

func TestInsertEntryRejectsDuplicates(t *testing.T) {
	idx, bpm := setupIndex(t, nil)
	ctx := context.Background()

	require.NoError(t, idx.InsertEntry(ctx, idKey(7), ridOf(7), nil))
	err := idx.InsertEntry(ctx, idKey(7), ridOf(8), nil)
	require.ErrorIs(t, err, flushmanager.ErrKeyAlreadyExists)

	rids, err := idx.ScanKey(ctx, idKey(7), OpEqual, nil)
	require.NoError(t, err)
	assert.Equal(t, []record.RowID{ridOf(7)}, rids)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestScanKeyOperators(t *testing.T) {
	idx, bpm := setupIndex(t, nil)
	ctx := context.Background()
	for v := int32(2); v <= 20; v += 2 {
		require.NoError(t, idx.InsertEntry(ctx, idKey(v), ridOf(v), nil))
	}

	cases := []struct {
		op    ScanOperator
		probe int32
		want  []int32
	}{
		{OpEqual, 10, []int32{10}},
		{OpLess, 10, []int32{2, 4, 6, 8}},
		{OpLessEqual, 10, []int32{2, 4, 6, 8, 10}},
		{OpGreater, 10, []int32{12, 14, 16, 18, 20}},
		{OpGreaterEqual, 10, []int32{10, 12, 14, 16, 18, 20}},
		{OpNotEqual, 10, []int32{2, 4, 6, 8, 12, 14, 16, 18, 20}},
		{OpLess, 11, []int32{2, 4, 6, 8, 10}},
		{OpGreaterEqual, 11, []int32{12, 14, 16, 18, 20}},
		{OpNotEqual, 11, []int32{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}},
		{OpGreater, 20, []int32{}},
		{OpLess, 2, []int32{}},
	}
	for _, tc := range cases {
		rids, err := idx.ScanKey(ctx, idKey(tc.probe), tc.op, nil)
		require.NoError(t, err, "%s %d", tc.op, tc.probe)
		assert.Equal(t, tc.want, slots(rids), "%s %d", tc.op, tc.probe)
	}

	_, err := idx.ScanKey(ctx, idKey(11), OpEqual, nil)
	assert.ErrorIs(t, err, flushmanager.ErrKeyNotFound)
	_, err = idx.ScanKey(ctx, idKey(11), ScanOperator(42), nil)
	assert.ErrorIs(t, err, flushmanager.ErrInvalidScanOperator)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestRemoveEntry(t *testing.T) {
	idx, bpm := setupIndex(t, nil)
	ctx := context.Background()
	for v := int32(1); v <= 40; v++ {
		require.NoError(t, idx.InsertEntry(ctx, idKey(v), ridOf(v), nil))
	}
	for v := int32(1); v <= 40; v += 3 {
		require.NoError(t, idx.RemoveEntry(ctx, idKey(v), ridOf(v), nil))
	}
	// Removing an absent key is not an error.
	require.NoError(t, idx.RemoveEntry(ctx, idKey(1), ridOf(1), nil))

	rids, err := idx.ScanKey(ctx, idKey(0), OpGreater, nil)
	require.NoError(t, err)
	var want []int32
	for v := int32(1); v <= 40; v++ {
		if (v-1)%3 != 0 {
			want = append(want, v)
		}
	}
	assert.Equal(t, want, slots(rids))

	_, err = idx.ScanKey(ctx, idKey(4), OpEqual, nil)
	assert.ErrorIs(t, err, flushmanager.ErrKeyNotFound)
	assert.True(t, bpm.CheckAllUnpinned())
}

func TestCompositeKeyIndex(t *testing.T) {
	bpm := setupBufferPool(t)
	keySchema := record.NewSchema(
		record.NewCharColumn("city", 16, 0, false, false),
		record.NewColumn("zip", record.TypeInt, 1, false, false),
	)
	idx, err := NewBPlusTreeIndex(2, "city_zip", keySchema, bpm, BPlusTreeIndexOptions{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, idx.KeySize())

	ctx := context.Background()
	entries := []struct {
		city string
		zip  int32
	}{{"oslo", 150}, {"bergen", 5003}, {"oslo", -1}, {"alta", 9510}}
	for i, e := range entries {
		key := record.NewRow(record.NewCharField(e.city), record.NewIntField(e.zip))
		require.NoError(t, idx.InsertEntry(ctx, key, ridOf(int32(i)), nil))
	}

	probe := record.NewRow(record.NewCharField("oslo"), record.NewIntField(0))
	rids, err := idx.ScanKey(ctx, probe, OpLess, nil)
	require.NoError(t, err)
	// alta, bergen, oslo/-1
	assert.Equal(t, []int32{3, 1, 2}, slots(rids))
}

func TestIndexKeyTooLarge(t *testing.T) {
	bpm := setupBufferPool(t)
	keySchema := record.NewSchema(record.NewCharColumn("blob", 200, 0, false, false))
	_, err := NewBPlusTreeIndex(3, "too_wide", keySchema, bpm, BPlusTreeIndexOptions{}, nil, nil)
	assert.ErrorIs(t, err, flushmanager.ErrKeyTooLarge)
}

func TestDestroyIndex(t *testing.T) {
	idx, bpm := setupIndex(t, nil)
	ctx := context.Background()
	for v := int32(0); v < 50; v++ {
		require.NoError(t, idx.InsertEntry(ctx, idKey(v), ridOf(v), nil))
	}
	require.NoError(t, idx.Destroy(ctx))
	assert.True(t, idx.Tree().IsEmpty())
	assert.Equal(t, uint32(1), bpm.DiskManager().NumAllocatedPages())

	reopened, err := NewBPlusTreeIndex(1, "pk_id", idSchema(), bpm, BPlusTreeIndexOptions{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, reopened.Tree().IsEmpty())
}

func TestIndexTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := context.Background()
	defer mp.Shutdown(ctx)
	defer tp.Shutdown(ctx)

	idx, _ := setupIndex(t, &telemetry.Telemetry{Tracer: tp.Tracer("test"), Meter: mp.Meter("test")})
	require.NoError(t, idx.InsertEntry(ctx, idKey(1), ridOf(1), nil))
	require.Error(t, idx.InsertEntry(ctx, idKey(1), ridOf(1), nil))
	_, err := idx.ScanKey(ctx, idKey(1), OpEqual, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "BPlusTreeIndex.InsertEntry", spans[0].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
	assert.Equal(t, "BPlusTreeIndex.ScanKey", spans[2].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var ops int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "minisql.index.operations_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				ops += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), ops)
}

func TestParseScanOperator(t *testing.T) {
	for _, s := range []string{"=", "<>", "<", "<=", ">", ">="} {
		op, err := ParseScanOperator(s)
		require.NoError(t, err)
		assert.Equal(t, s, op.String())
	}
	op, err := ParseScanOperator("!=")
	require.NoError(t, err)
	assert.Equal(t, OpNotEqual, op)

	_, err = ParseScanOperator("~")
	assert.ErrorIs(t, err, flushmanager.ErrInvalidScanOperator)
}
