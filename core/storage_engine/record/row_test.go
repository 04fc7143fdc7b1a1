package record

import (
	"testing"

	"github.com/stretchr/testify/require"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
)

func testSchema() *Schema {
	return NewSchema(
		NewColumn("id", TypeInt, 0, false, true),
		NewCharColumn("name", 32, 1, true, false),
		NewColumn("score", TypeFloat, 2, true, false),
	)
}

func TestRowSerializeRoundTrip(t *testing.T) {
	schema := testSchema()
	row := NewRow(NewIntField(-42), NewCharField("minisql"), NewFloatField(3.5))

	buf := row.Serialize()
	require.Len(t, buf, row.SerializedSize())
	// count + 1 bitmap byte + int + (len + 7 bytes) + float
	require.Equal(t, 4+1+4+4+7+4, len(buf))

	got, err := DeserializeRow(buf, schema)
	require.NoError(t, err)
	require.Equal(t, int32(-42), got.Field(0).Int())
	require.Equal(t, "minisql", got.Field(1).Char())
	require.Equal(t, float32(3.5), got.Field(2).Float())
	require.False(t, got.RowID().IsValid())
}

func TestRowNullFieldsTakeNoPayload(t *testing.T) {
	schema := testSchema()
	row := NewRow(NewIntField(7), NewNullField(TypeChar), NewNullField(TypeFloat))

	buf := row.Serialize()
	require.Equal(t, 4+1+4, len(buf))
	require.Equal(t, byte(0x60), buf[4], "bits for fields 1 and 2")

	got, err := DeserializeRow(buf, schema)
	require.NoError(t, err)
	require.True(t, got.Field(1).IsNull())
	require.True(t, got.Field(2).IsNull())
	require.Equal(t, "(7, null, null)", got.String())
}

func TestNullBitmapRoundsUp(t *testing.T) {
	columns := make([]*Column, 9)
	fields := make([]Field, 9)
	for i := range columns {
		columns[i] = NewColumn("c", TypeInt, uint32(i), true, false)
		fields[i] = NewIntField(int32(i))
	}
	fields[8] = NewNullField(TypeInt)
	row := NewRow(fields...)
	buf := row.Serialize()
	require.Equal(t, 4+2+8*4, len(buf))
	require.Equal(t, byte(0x80), buf[5])

	got, err := DeserializeRow(buf, NewSchema(columns...))
	require.NoError(t, err)
	require.True(t, got.Field(8).IsNull())
	require.Equal(t, int32(7), got.Field(7).Int())
}

func TestDeserializeRowErrors(t *testing.T) {
	schema := testSchema()

	_, err := DeserializeRow([]byte{1, 0}, schema)
	require.ErrorIs(t, err, flushmanager.ErrDeserialization)

	short := NewRow(NewIntField(1)).Serialize()
	_, err = DeserializeRow(short, schema)
	require.ErrorIs(t, err, flushmanager.ErrDeserialization)

	buf := NewRow(NewIntField(1), NewCharField("abc"), NewFloatField(1)).Serialize()
	_, err = DeserializeRow(buf[:len(buf)-6], schema)
	require.ErrorIs(t, err, flushmanager.ErrDeserialization)
}

func TestRowIDEncoding(t *testing.T) {
	buf := make([]byte, RowIDSize)
	rid := RowID{PageID: 12, Slot: 99}
	rid.Encode(buf)
	require.Equal(t, rid, DecodeRowID(buf))

	InvalidRowID.Encode(buf)
	require.False(t, DecodeRowID(buf).IsValid())
	require.Equal(t, "(12,99)", rid.String())
}

func TestProjectAndCompareSerialized(t *testing.T) {
	schema := testSchema()
	keySchema, err := schema.Project([]int{1, 0})
	require.NoError(t, err)
	require.Equal(t, "name", keySchema.Column(0).Name)
	require.Equal(t, uint32(1), keySchema.Column(1).Index)

	rows := []*Row{
		NewRow(NewIntField(2), NewCharField("bob"), NewFloatField(0)),
		NewRow(NewIntField(1), NewCharField("bob"), NewFloatField(0)),
		NewRow(NewIntField(9), NewCharField("alice"), NewFloatField(0)),
		NewRow(NewIntField(0), NewNullField(TypeChar), NewFloatField(0)),
	}
	keys := make([][]byte, len(rows))
	for i, r := range rows {
		k, err := r.Project([]int{1, 0})
		require.NoError(t, err)
		// Padding after the encoding must not change ordering.
		keys[i] = append(k.Serialize(), 0, 0, 0)
	}

	require.Equal(t, 1, CompareSerialized(keys[0], keys[1], keySchema))
	require.Equal(t, -1, CompareSerialized(keys[2], keys[1], keySchema))
	require.Equal(t, -1, CompareSerialized(keys[3], keys[2], keySchema))
	require.Equal(t, 0, CompareSerialized(keys[0], keys[0], keySchema))

	_, err = schema.Project([]int{5})
	require.Error(t, err)
}

func TestFieldCompare(t *testing.T) {
	require.Equal(t, -1, NewIntField(-1).Compare(NewIntField(1)))
	require.Equal(t, 1, NewFloatField(2.5).Compare(NewFloatField(-2.5)))
	require.Equal(t, 0, NewCharField("x").Compare(NewCharField("x")))
	require.Equal(t, -1, NewNullField(TypeInt).Compare(NewIntField(0)))
	require.Equal(t, 0, NewNullField(TypeInt).Compare(NewNullField(TypeInt)))
}

func TestSchemaMaxSerializedSize(t *testing.T) {
	// header 4+1, int 4, char 4+32, float 4
	require.Equal(t, 49, testSchema().MaxSerializedSize())
	idx, ok := testSchema().ColumnIndex("NAME")
	require.True(t, ok)
	require.Equal(t, 1, idx)
}
