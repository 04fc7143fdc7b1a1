package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sushant-115/minisql/core/indexmanager"
	storageengine "github.com/sushant-115/minisql/core/storage_engine"
	"github.com/sushant-115/minisql/core/storage_engine/record"
	tableheap "github.com/sushant-115/minisql/core/storage_engine/table_heap"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
)

const (
	// The demo table is the first page allocated after the index roots page.
	demoTablePageID pagemanager.PageID = 1
	demoIndexID     uint32             = 1
	nameLength                         = 32
)

var errQuit = errors.New("quit")

func demoSchema() *record.Schema {
	return record.NewSchema(
		record.NewColumn("id", record.TypeInt, 0, false, true),
		record.NewCharColumn("name", nameLength, 1, false, false),
	)
}

func demoKeySchema() *record.Schema {
	return record.NewSchema(record.NewColumn("id", record.TypeInt, 0, false, true))
}

// shell runs commands against the demo table of one database.
type shell struct {
	db   *storageengine.DBStorageEngine
	heap *tableheap.TableHeap
	idx  *indexmanager.BPlusTreeIndex
	out  io.Writer
}

// newShell opens the demo table and its primary index, creating them on a
// fresh database.
func newShell(db *storageengine.DBStorageEngine, out io.Writer) (*shell, error) {
	var heap *tableheap.TableHeap
	var err error
	if db.DiskManager().NumAllocatedPages() <= 1 {
		heap, err = db.CreateTableHeap(demoSchema())
		if err == nil && heap.GetFirstPageID() != demoTablePageID {
			err = fmt.Errorf("demo table landed on page %d, want %d", heap.GetFirstPageID(), demoTablePageID)
		}
	} else {
		heap, err = db.OpenTableHeap(demoTablePageID, demoSchema())
	}
	if err != nil {
		return nil, err
	}
	idx, err := db.OpenIndex(demoIndexID, "pk_demo_id", demoKeySchema())
	if err != nil {
		return nil, err
	}
	return &shell{db: db, heap: heap, idx: idx, out: out}, nil
}

func idKey(id int32) *record.Row { return record.NewRow(record.NewIntField(id)) }

func parseID(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return int32(v), nil
}

// exec runs one command. It returns errQuit for exit.
func (s *shell) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	txn := transaction.NewTransaction()
	defer txn.Commit()

	switch cmd := strings.ToLower(args[0]); cmd {
	case "insert":
		if len(args) < 3 {
			return errors.New("insert requires <id> <name>")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		return s.insert(ctx, id, strings.Join(args[2:], " "), txn)
	case "get":
		if len(args) != 2 {
			return errors.New("get requires <id>")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		return s.scan(ctx, indexmanager.OpEqual, id, txn)
	case "scan":
		if len(args) != 3 {
			return errors.New("scan requires <op> <id>")
		}
		op, err := indexmanager.ParseScanOperator(args[1])
		if err != nil {
			return err
		}
		id, err := parseID(args[2])
		if err != nil {
			return err
		}
		return s.scan(ctx, op, id, txn)
	case "delete":
		if len(args) != 2 {
			return errors.New("delete requires <id>")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		return s.delete(ctx, id, txn)
	case "rows":
		return s.rows(txn)
	case "tree":
		return s.idx.Tree().Dump(s.out)
	case "stats":
		s.stats()
		return nil
	case "flush":
		if err := s.db.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "flushed")
		return nil
	case "backup":
		if len(args) != 2 {
			return errors.New("backup requires <path>")
		}
		n, err := s.db.Backup(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "backed up %d bytes to %s\n", n, args[1])
		return nil
	case "help":
		s.help()
		return nil
	case "exit", "quit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", cmd)
	}
}

func (s *shell) insert(ctx context.Context, id int32, name string, txn *transaction.Transaction) error {
	if len(name) > nameLength {
		return fmt.Errorf("name longer than %d bytes", nameLength)
	}
	row := record.NewRow(record.NewIntField(id), record.NewCharField(name))
	if err := s.heap.InsertTuple(row, txn); err != nil {
		return err
	}
	if err := s.idx.InsertEntry(ctx, idKey(id), row.RowID(), txn); err != nil {
		// Undo the heap insert so the table and the index agree.
		if derr := s.heap.ApplyDelete(row.RowID(), txn); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	fmt.Fprintf(s.out, "inserted %s at %s\n", row, row.RowID())
	return nil
}

func (s *shell) scan(ctx context.Context, op indexmanager.ScanOperator, id int32, txn *transaction.Transaction) error {
	rids, err := s.idx.ScanKey(ctx, idKey(id), op, txn)
	if errors.Is(err, flushmanager.ErrKeyNotFound) {
		fmt.Fprintln(s.out, "not found")
		return nil
	}
	if err != nil {
		return err
	}
	for _, rid := range rids {
		row, err := s.heap.GetTuple(rid, txn)
		if err != nil {
			return fmt.Errorf("index points at %s: %w", rid, err)
		}
		fmt.Fprintf(s.out, "%s %s\n", rid, row)
	}
	fmt.Fprintf(s.out, "%d row(s)\n", len(rids))
	return nil
}

func (s *shell) delete(ctx context.Context, id int32, txn *transaction.Transaction) error {
	rids, err := s.idx.ScanKey(ctx, idKey(id), indexmanager.OpEqual, txn)
	if errors.Is(err, flushmanager.ErrKeyNotFound) {
		fmt.Fprintln(s.out, "not found")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.heap.MarkDelete(rids[0], txn); err != nil {
		return err
	}
	if err := s.heap.ApplyDelete(rids[0], txn); err != nil {
		return err
	}
	if err := s.idx.RemoveEntry(ctx, idKey(id), rids[0], txn); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "deleted %d\n", id)
	return nil
}

func (s *shell) rows(txn *transaction.Transaction) error {
	it, err := s.heap.Begin(txn)
	if err != nil {
		return err
	}
	n := 0
	for ; !it.IsEnd(); n++ {
		fmt.Fprintf(s.out, "%s %s\n", it.RowID(), it.Row())
		if err := it.Next(); err != nil {
			return err
		}
	}
	fmt.Fprintf(s.out, "%d row(s)\n", n)
	return nil
}

func (s *shell) stats() {
	bpm := s.db.BufferPool()
	st := bpm.Stats()
	dm := s.db.DiskManager()
	fmt.Fprintf(s.out, "buffer pool: frames=%d hits=%d misses=%d evictions=%d flushes=%d\n",
		bpm.PoolSize(), st.Hits, st.Misses, st.Evictions, st.Flushes)
	fmt.Fprintf(s.out, "disk: allocated_pages=%d extents=%d\n", dm.NumAllocatedPages(), dm.NumExtents())
	fmt.Fprintf(s.out, "index: root_page=%d key_size=%d leaf_max=%d internal_max=%d\n",
		s.idx.Tree().RootPageID(), s.idx.KeySize(), s.idx.Tree().LeafMaxSize(), s.idx.Tree().InternalMaxSize())
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  insert <id> <name>")
	fmt.Fprintln(s.out, "  get <id>")
	fmt.Fprintln(s.out, "  delete <id>")
	fmt.Fprintln(s.out, "  scan <op> <id>      op is one of = <> < <= > >=")
	fmt.Fprintln(s.out, "  rows")
	fmt.Fprintln(s.out, "  tree")
	fmt.Fprintln(s.out, "  stats")
	fmt.Fprintln(s.out, "  flush")
	fmt.Fprintln(s.out, "  backup <path>")
	fmt.Fprintln(s.out, "  help")
	fmt.Fprintln(s.out, "  exit / quit")
}
