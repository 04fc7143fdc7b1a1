package record

import (
	"encoding/binary"
	"fmt"
	"strings"

	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

// RowID locates a row: the table page holding it and its slot in that page.
type RowID struct {
	PageID pagemanager.PageID
	Slot   uint32
}

// InvalidRowID is the end-of-iteration sentinel.
var InvalidRowID = RowID{PageID: pagemanager.InvalidPageID}

// RowIDSize is the encoded size of a RowID.
const RowIDSize = 8

func (r RowID) IsValid() bool { return r.PageID.IsValid() }

func (r RowID) String() string { return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot) }

// Encode writes the RowID into buf[0:8].
func (r RowID) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], r.Slot)
}

// DecodeRowID reads a RowID from buf[0:8].
func DecodeRowID(buf []byte) RowID {
	return RowID{
		PageID: pagemanager.PageID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		Slot:   binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// Row is a sequence of fields plus the location it was read from or written to.
//
// Wire format:
//
//	field count u32 | null bitmap, one bit per field, MSB first | non-null field payloads
type Row struct {
	rid    RowID
	fields []Field
}

func NewRow(fields ...Field) *Row {
	return &Row{rid: InvalidRowID, fields: fields}
}

func (r *Row) RowID() RowID       { return r.rid }
func (r *Row) SetRowID(rid RowID) { r.rid = rid }
func (r *Row) Fields() []Field    { return r.fields }
func (r *Row) Field(i int) Field  { return r.fields[i] }
func (r *Row) FieldCount() int    { return len(r.fields) }

func (r *Row) String() string {
	parts := make([]string, len(r.fields))
	for i, f := range r.fields {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func rowHeaderSize(fieldCount int) int {
	return 4 + (fieldCount+7)/8
}

// SerializedSize returns the encoded length of the row.
func (r *Row) SerializedSize() int {
	n := rowHeaderSize(len(r.fields))
	for _, f := range r.fields {
		n += f.SerializedSize()
	}
	return n
}

// SerializeTo encodes the row into buf, which must hold SerializedSize bytes.
func (r *Row) SerializeTo(buf []byte) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(r.fields)))
	header := rowHeaderSize(len(r.fields))
	clear(buf[4:header])
	off := header
	for i, f := range r.fields {
		if f.IsNull() {
			buf[4+i/8] |= 0x80 >> (i % 8)
			continue
		}
		off += f.SerializeTo(buf[off:])
	}
	return off
}

// Serialize returns a fresh encoding of the row.
func (r *Row) Serialize() []byte {
	buf := make([]byte, r.SerializedSize())
	r.SerializeTo(buf)
	return buf
}

// DeserializeRow decodes a row written by SerializeTo using schema for field types.
func DeserializeRow(buf []byte, schema *Schema) (*Row, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: row shorter than header", flushmanager.ErrDeserialization)
	}
	count := int(binary.LittleEndian.Uint32(buf))
	if count != schema.ColumnCount() {
		return nil, fmt.Errorf("%w: row has %d fields, schema has %d", flushmanager.ErrDeserialization, count, schema.ColumnCount())
	}
	header := rowHeaderSize(count)
	if len(buf) < header {
		return nil, fmt.Errorf("%w: row shorter than null bitmap", flushmanager.ErrDeserialization)
	}
	fields := make([]Field, count)
	off := header
	for i, col := range schema.Columns() {
		if isNullBit(buf, i) {
			fields[i] = NewNullField(col.Type)
			continue
		}
		f, n, err := DeserializeField(buf[off:], col.Type)
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, col.Name, err)
		}
		fields[i] = f
		off += n
	}
	return &Row{rid: InvalidRowID, fields: fields}, nil
}

// Project builds the row made of the fields at attrs, e.g. an index key row.
func (r *Row) Project(attrs []int) (*Row, error) {
	fields := make([]Field, 0, len(attrs))
	for _, attr := range attrs {
		if attr < 0 || attr >= len(r.fields) {
			return nil, fmt.Errorf("field index %d out of range [0,%d)", attr, len(r.fields))
		}
		fields = append(fields, r.fields[attr])
	}
	return &Row{rid: r.rid, fields: fields}, nil
}

// CompareSerialized orders two encoded rows of schema field by field without
// allocating. Trailing padding after the encoding is ignored.
func CompareSerialized(a, b []byte, schema *Schema) int {
	count := schema.ColumnCount()
	header := rowHeaderSize(count)
	offA, offB := header, header
	for i, col := range schema.Columns() {
		nullA, nullB := isNullBit(a, i), isNullBit(b, i)
		switch {
		case nullA && nullB:
			continue
		case nullA:
			return -1
		case nullB:
			return 1
		}
		if c := compareEncoded(a[offA:], b[offB:], col.Type); c != 0 {
			return c
		}
		la, _ := fieldLen(a[offA:], col.Type)
		lb, _ := fieldLen(b[offB:], col.Type)
		offA += la
		offB += lb
	}
	return 0
}

func isNullBit(buf []byte, i int) bool {
	return buf[4+i/8]&(0x80>>(i%8)) != 0
}
