package indexmanager

import (
	"context"
	"fmt"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
)

// Index is the contract between table maintenance code and an index
// implementation. Keys are rows of the index's key schema.
type Index interface {
	// InsertEntry records key -> rid. A key that is already present fails with
	// ErrKeyAlreadyExists.
	InsertEntry(ctx context.Context, key *record.Row, rid record.RowID, txn *transaction.Transaction) error
	// RemoveEntry drops key. Absent keys are not an error.
	RemoveEntry(ctx context.Context, key *record.Row, rid record.RowID, txn *transaction.Transaction) error
	// ScanKey returns the RowIDs of every entry whose key satisfies "entry op key",
	// in key order.
	ScanKey(ctx context.Context, key *record.Row, op ScanOperator, txn *transaction.Transaction) ([]record.RowID, error)
	// Destroy releases every page the index owns.
	Destroy(ctx context.Context) error
	// Name returns the index name.
	Name() string
}

// ScanOperator selects which keys ScanKey returns relative to the probe key.
type ScanOperator int

const (
	OpEqual ScanOperator = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

var scanOperatorNames = map[ScanOperator]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

func (op ScanOperator) String() string {
	if s, ok := scanOperatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("ScanOperator(%d)", int(op))
}

// ParseScanOperator maps a comparison symbol to its operator. "!=" is accepted
// as a synonym of "<>".
func ParseScanOperator(s string) (ScanOperator, error) {
	if s == "!=" {
		return OpNotEqual, nil
	}
	for op, name := range scanOperatorNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", flushmanager.ErrInvalidScanOperator, s)
}

// matches reports whether an entry comparing c against the probe key (as
// returned by a comparator) satisfies op.
func (op ScanOperator) matches(c int) bool {
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}
