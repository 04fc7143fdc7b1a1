package record

import (
	"fmt"
	"strings"
)

// Column describes one field of a row.
type Column struct {
	Name string
	Type TypeID
	// Length is the maximum byte length of a char column, 4 for int and float.
	Length   uint32
	Index    uint32
	Nullable bool
	Unique   bool
}

func NewColumn(name string, typ TypeID, index uint32, nullable, unique bool) *Column {
	if typ == TypeChar {
		panic("char columns need a length, use NewCharColumn")
	}
	return &Column{Name: name, Type: typ, Length: 4, Index: index, Nullable: nullable, Unique: unique}
}

func NewCharColumn(name string, length, index uint32, nullable, unique bool) *Column {
	return &Column{Name: name, Type: TypeChar, Length: length, Index: index, Nullable: nullable, Unique: unique}
}

// maxSerializedSize is the most bytes a value of this column can occupy.
func (c *Column) maxSerializedSize() int {
	if c.Type == TypeChar {
		return 4 + int(c.Length)
	}
	return 4
}

// Schema is an ordered list of columns.
type Schema struct {
	columns []*Column
}

func NewSchema(columns ...*Column) *Schema {
	return &Schema{columns: columns}
}

func (s *Schema) Columns() []*Column   { return s.columns }
func (s *Schema) ColumnCount() int     { return len(s.columns) }
func (s *Schema) Column(i int) *Column { return s.columns[i] }

// ColumnIndex returns the position of the named column.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.columns {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Project builds the schema made of the columns at attrs, in that order.
func (s *Schema) Project(attrs []int) (*Schema, error) {
	columns := make([]*Column, 0, len(attrs))
	for i, attr := range attrs {
		if attr < 0 || attr >= len(s.columns) {
			return nil, fmt.Errorf("column index %d out of range [0,%d)", attr, len(s.columns))
		}
		c := *s.columns[attr]
		c.Index = uint32(i)
		columns = append(columns, &c)
	}
	return NewSchema(columns...), nil
}

// MaxSerializedSize is the largest encoding a row of this schema can have.
func (s *Schema) MaxSerializedSize() int {
	n := rowHeaderSize(len(s.columns))
	for _, c := range s.columns {
		n += c.maxSerializedSize()
	}
	return n
}
