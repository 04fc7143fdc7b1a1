package transaction

import (
	"time"

	"github.com/google/uuid"
)

// TransactionState represents the in-memory state of a transaction.
type TransactionState int

const (
	TxnStateRunning   TransactionState = iota // Transaction is active, operations are being applied
	TxnStateCommitted                         // Transaction finished successfully
	TxnStateAborted                           // Transaction was abandoned
)

func (s TransactionState) String() string {
	switch s {
	case TxnStateRunning:
		return "running"
	case TxnStateCommitted:
		return "committed"
	case TxnStateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is passed through storage operations. It carries identity and
// state only; there is no undo log, so Abort does not roll anything back.
type Transaction struct {
	ID        uuid.UUID
	State     TransactionState
	StartedAt time.Time
}

func NewTransaction() *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		State:     TxnStateRunning,
		StartedAt: time.Now(),
	}
}

func (t *Transaction) Commit() { t.State = TxnStateCommitted }
func (t *Transaction) Abort()  { t.State = TxnStateAborted }
