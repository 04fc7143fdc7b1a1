package commonutils

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

func GoID() int64 {
	// A small buffer is enough for the first line of runtime.Stack
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	// The first line looks like: "goroutine 123 [running]:\n"
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Caller describes the function skip frames above the caller of Caller,
// e.g. "table_heap.go:88 (tableheap.(*TableHeap).InsertTuple) gid=17".
func Caller(skip int) string {
	// skip=0 -> caller of this function
	// skip=1 -> caller's caller, and so on
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown caller"
	}

	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = filepath.Base(fn.Name())
	}
	return fmt.Sprintf("%s:%d (%s) gid=%d", filepath.Base(file), line, name, GoID())
}
