package transaction

import "github.com/sushant-115/minisql/core/storage_engine/record"

// LockManager grants row-level locks to transactions.
type LockManager interface {
	LockShared(txn *Transaction, rid record.RowID) bool
	LockExclusive(txn *Transaction, rid record.RowID) bool
	Unlock(txn *Transaction, rid record.RowID) bool
}

// NoopLockManager grants every request.
type NoopLockManager struct{}

func (NoopLockManager) LockShared(*Transaction, record.RowID) bool    { return true }
func (NoopLockManager) LockExclusive(*Transaction, record.RowID) bool { return true }
func (NoopLockManager) Unlock(*Transaction, record.RowID) bool        { return true }
