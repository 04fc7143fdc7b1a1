package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minisql/core/storage_engine/record"
)

func TestTransactionLifecycle(t *testing.T) {
	a, b := NewTransaction(), NewTransaction()
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, TxnStateRunning, a.State)

	a.Commit()
	require.Equal(t, "committed", a.State.String())
	b.Abort()
	require.Equal(t, TxnStateAborted, b.State)
}

func TestNoopLockManager(t *testing.T) {
	var lm LockManager = NoopLockManager{}
	txn := NewTransaction()
	rid := record.RowID{PageID: 1, Slot: 2}
	require.True(t, lm.LockShared(txn, rid))
	require.True(t, lm.LockExclusive(txn, rid))
	require.True(t, lm.Unlock(txn, rid))
}
