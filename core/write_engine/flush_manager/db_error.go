package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrKeyTooLarge      = errors.New("key exceeds the maximum index key size")
	ErrInvalidMaxSize   = errors.New("invalid b+ tree node max size")
	ErrIndexRootsFull   = errors.New("index roots page is full")

	// --- Buffer pool ---
	ErrPageNotFound     = errors.New("page not found in buffer pool")
	ErrBufferPoolFull   = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned       = errors.New("page is pinned and cannot be deleted")
	ErrPageNotPinned    = errors.New("page has pin count 0")
	ErrPagesStillPinned = errors.New("pages are still pinned")
	ErrOutOfMemory      = errors.New("out of memory: no buffer pool frame available")

	// --- Disk ---
	ErrIO               = errors.New("i/o error")
	ErrInvalidPageData  = errors.New("invalid page data")
	ErrDeserialization  = errors.New("error during deserialization")
	ErrOutOfSpace       = errors.New("no free extent left in database file")
	ErrPageNotAllocated = errors.New("page is not allocated")
	ErrDBFileLocked     = errors.New("database file is locked by another process")

	// --- Table heap ---
	ErrTupleTooLarge   = errors.New("tuple too large to fit in a table page")
	ErrSlotNotFound    = errors.New("tuple slot not found")
	ErrTupleDeleted    = errors.New("tuple is marked deleted")
	ErrNotEnoughSpace  = errors.New("not enough space in page for update")
	ErrIteratorInvalid = errors.New("iterator is invalid or exhausted")

	// --- Engine ---
	ErrDatabaseNotOpen     = errors.New("database is not open")
	ErrDatabaseExists      = errors.New("database already exists")
	ErrInvalidScanOperator = errors.New("invalid scan operator")
)
