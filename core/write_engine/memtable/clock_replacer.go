package memtable

import "sync"

type clockSlot struct {
	referenced bool
	occupied   bool
}

// ClockReplacer approximates LRU with the second-chance algorithm. Slot i
// belongs to frame i; the hand sweeps every slot, clearing reference bits,
// and evicts the first occupied slot whose bit is already clear.
type ClockReplacer struct {
	mu    sync.Mutex
	slots []clockSlot
	hand  int
	size  int
}

func NewClockReplacer(numFrames int) *ClockReplacer {
	return &ClockReplacer{slots: make([]clockSlot, numFrames)}
}

func (r *ClockReplacer) Victim() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return -1, false
	}
	// At most two sweeps: the first may only clear reference bits.
	for {
		slot := &r.slots[r.hand]
		frameID := r.hand
		r.hand = (r.hand + 1) % len(r.slots)
		if !slot.occupied {
			continue
		}
		if slot.referenced {
			slot.referenced = false
			continue
		}
		slot.occupied = false
		r.size--
		return frameID, true
	}
}

func (r *ClockReplacer) Pin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frameID < 0 || frameID >= len(r.slots) {
		return
	}
	slot := &r.slots[frameID]
	if slot.occupied {
		slot.occupied = false
		slot.referenced = false
		r.size--
	}
}

func (r *ClockReplacer) Unpin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frameID < 0 || frameID >= len(r.slots) {
		return
	}
	slot := &r.slots[frameID]
	if !slot.occupied {
		slot.occupied = true
		r.size++
	}
	slot.referenced = true
}

func (r *ClockReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
