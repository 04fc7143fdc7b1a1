package btree

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
)

// MaxKeySize is the widest key an index page can hold.
const MaxKeySize = 128

// keySizes are the fixed key widths an index can be created with.
var keySizes = [...]int{4, 8, 16, 32, 64, 128}

// KeySizeFor returns the smallest supported key width holding width bytes.
func KeySizeFor(width int) (int, error) {
	for _, size := range keySizes {
		if width <= size {
			return size, nil
		}
	}
	return 0, fmt.Errorf("%w: %d bytes, max %d", flushmanager.ErrKeyTooLarge, width, MaxKeySize)
}

// KeyComparator orders two fixed-width keys. Both slices have the tree's key
// size and may carry zero padding after the encoded key.
type KeyComparator func(a, b []byte) int

// KeyFormatter renders a key for Dump output.
type KeyFormatter func(key []byte) string

// EncodeInt64Key encodes v as an 8 byte key for use with Int64Comparator.
func EncodeInt64Key(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

func DecodeInt64Key(key []byte) int64 {
	return int64(binary.LittleEndian.Uint64(key))
}

// Int64Comparator orders keys written by EncodeInt64Key.
func Int64Comparator(a, b []byte) int {
	x, y := DecodeInt64Key(a), DecodeInt64Key(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func FormatInt64Key(key []byte) string {
	return strconv.FormatInt(DecodeInt64Key(key), 10)
}

// EncodeRowKey serializes a key row into a zero padded key of keySize bytes.
func EncodeRowKey(keyRow *record.Row, keySize int) ([]byte, error) {
	size := keyRow.SerializedSize()
	if size > keySize {
		return nil, fmt.Errorf("%w: key row needs %d bytes, index keys are %d", flushmanager.ErrKeyTooLarge, size, keySize)
	}
	buf := make([]byte, keySize)
	keyRow.SerializeTo(buf)
	return buf, nil
}

// GenericComparator orders keys produced by EncodeRowKey for keySchema
// field by field, without decoding them.
func GenericComparator(keySchema *record.Schema) KeyComparator {
	return func(a, b []byte) int {
		return record.CompareSerialized(a, b, keySchema)
	}
}

// RowKeyFormatter decodes keys of keySchema for display.
func RowKeyFormatter(keySchema *record.Schema) KeyFormatter {
	return func(key []byte) string {
		row, err := record.DeserializeRow(key, keySchema)
		if err != nil {
			return fmt.Sprintf("%x", key)
		}
		return row.String()
	}
}
