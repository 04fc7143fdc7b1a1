package memtable

import (
	"fmt"
	"strings"
)

// Replacer picks which unpinned frame the buffer pool evicts next.
// Pin and Unpin are idempotent, and Size counts exactly the frames
// the replacer currently considers evictable.
type Replacer interface {
	// Victim removes and returns the frame to evict, or false if none is evictable.
	Victim() (int, bool)
	// Pin removes the frame from the evictable set.
	Pin(frameID int)
	// Unpin adds the frame to the evictable set.
	Unpin(frameID int)
	Size() int
}

// ReplacerType names a replacement policy in configuration.
type ReplacerType string

const (
	LRUReplacerType   ReplacerType = "lru"
	ClockReplacerType ReplacerType = "clock"
)

// NewReplacer builds the replacer named by replacerType for numFrames frames.
func NewReplacer(replacerType ReplacerType, numFrames int) (Replacer, error) {
	switch ReplacerType(strings.ToLower(string(replacerType))) {
	case LRUReplacerType, "":
		return NewLRUReplacer(numFrames), nil
	case ClockReplacerType:
		return NewClockReplacer(numFrames), nil
	default:
		return nil, fmt.Errorf("unknown replacer type %q", replacerType)
	}
}
