package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// chunkSize: size of each read/write chunk
const chunkSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

// ErrChecksumMismatch is returned by CopyThrottled when the copy does not
// read back identical to the source.
var ErrChecksumMismatch = errors.New("copy checksum mismatch")

// CopyThrottled copies srcPath to dstPath, writing at most rateBytesPerSec
// bytes per second (0 disables throttling). With verify set, dstPath is read
// back and its SHA-256 compared against the source. It returns the number of
// bytes copied.
func CopyThrottled(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64, verify bool) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open src: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("open dst: %w", err)
	}
	defer dst.Close()

	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), chunkSize) // burst = chunkSize
	}

	srcSum := sha256.New()
	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	var copied int64
	for {
		n, rerr := src.ReadAt(buf[:chunkSize], copied)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return copied, fmt.Errorf("rate limiter: %w", err)
				}
			} else if err := ctx.Err(); err != nil {
				return copied, err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return copied, fmt.Errorf("write dst: %w", err)
			}
			if verify {
				srcSum.Write(buf[:n])
			}
			copied += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return copied, fmt.Errorf("read src: %w", rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return copied, fmt.Errorf("sync dst: %w", err)
	}
	if !verify {
		return copied, nil
	}

	dstSum, err := fileChecksum(dstPath)
	if err != nil {
		return copied, err
	}
	if want := srcSum.Sum(nil); !bytes.Equal(want, dstSum) {
		return copied, fmt.Errorf("%w: %s has %x, want %x", ErrChecksumMismatch, dstPath, dstSum, want)
	}
	return copied, nil
}

func fileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
