package memtable

import (
	"container/list" // For LRU
	"sync"
)

// LRUReplacer evicts the frame that was unpinned least recently.
type LRUReplacer struct {
	mu       sync.Mutex
	lruList  *list.List            // frame ids, most recently unpinned at the front
	lruMap   map[int]*list.Element // frame id to list element
	capacity int
}

func NewLRUReplacer(numFrames int) *LRUReplacer {
	return &LRUReplacer{
		lruList:  list.New(),
		lruMap:   make(map[int]*list.Element, numFrames),
		capacity: numFrames,
	}
}

func (r *LRUReplacer) Victim() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	back := r.lruList.Back()
	if back == nil {
		return -1, false
	}
	frameID := r.lruList.Remove(back).(int)
	delete(r.lruMap, frameID)
	return frameID, true
}

func (r *LRUReplacer) Pin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.lruMap[frameID]; ok {
		r.lruList.Remove(elem)
		delete(r.lruMap, frameID)
	}
}

func (r *LRUReplacer) Unpin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.lruMap[frameID]; ok {
		r.lruList.MoveToFront(elem)
		return
	}
	if r.lruList.Len() >= r.capacity {
		return
	}
	r.lruMap[frameID] = r.lruList.PushFront(frameID)
}

func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lruList.Len()
}
