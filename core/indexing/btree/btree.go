package btree

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sushant-115/minisql/core/storage_engine/record"
	"github.com/sushant-115/minisql/core/transaction"
	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
	"github.com/sushant-115/minisql/core/write_engine/memtable"
	pagemanager "github.com/sushant-115/minisql/core/write_engine/page_manager"
	logging "github.com/sushant-115/minisql/pkg/logger"
	"go.uber.org/zap"
)

// BPlusTree is a unique-key B+ tree mapping fixed-width keys to RowIDs. Every
// node lives in a buffer pool page and the root page id is kept in the index
// roots page under indexID.
//
// Structure modifications are serialized by mu: Insert, Remove and Destroy hold
// it exclusively, lookups and iterator construction share it. Page latches
// guard node bytes against iterators, which run outside mu. A latch is never
// held across a call that latches another page, and always released before
// the page is unpinned.
//
// Running out of buffer pool frames in the middle of a split or merge leaves
// no way to undo the half-finished change, so it panics with an error wrapping
// ErrOutOfMemory.
type BPlusTree struct {
	indexID         uint32
	bpm             *memtable.BufferPoolManager
	cmp             KeyComparator
	formatKey       KeyFormatter
	keySize         int
	leafMaxSize     int
	internalMaxSize int

	mu         sync.RWMutex
	rootPageID pagemanager.PageID
	logger     *zap.Logger

	// pendingFree holds pages dropped from the tree while an iterator still
	// had them pinned. They are freed once the pin goes away.
	pendingMu   sync.Mutex
	pendingFree map[pagemanager.PageID]struct{}
}

// NewBPlusTree opens the tree registered under indexID, or prepares an empty
// one. A max size of 0 selects the largest size a page can hold.
func NewBPlusTree(indexID uint32, bpm *memtable.BufferPoolManager, cmp KeyComparator, keySize int,
	leafMaxSize, internalMaxSize int, logger *zap.Logger) (*BPlusTree, error) {
	if keySize <= 0 || keySize > MaxKeySize {
		return nil, fmt.Errorf("%w: key size %d", flushmanager.ErrKeyTooLarge, keySize)
	}
	if leafMaxSize == 0 {
		leafMaxSize = LeafCapacity(keySize) - 1
	}
	if internalMaxSize == 0 {
		internalMaxSize = InternalCapacity(keySize) - 1
	}
	// A node briefly holds max+1 pairs before it splits.
	if leafMaxSize < 2 || leafMaxSize+1 > LeafCapacity(keySize) {
		return nil, fmt.Errorf("%w: leaf max size %d not in [2,%d] for %d byte keys",
			flushmanager.ErrInvalidMaxSize, leafMaxSize, LeafCapacity(keySize)-1, keySize)
	}
	if internalMaxSize < 3 || internalMaxSize+1 > InternalCapacity(keySize) {
		return nil, fmt.Errorf("%w: internal max size %d not in [3,%d] for %d byte keys",
			flushmanager.ErrInvalidMaxSize, internalMaxSize, InternalCapacity(keySize)-1, keySize)
	}

	t := &BPlusTree{
		indexID:         indexID,
		bpm:             bpm,
		cmp:             cmp,
		formatKey:       func(key []byte) string { return fmt.Sprintf("%x", key) },
		keySize:         keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      pagemanager.InvalidPageID,
		pendingFree:     make(map[pagemanager.PageID]struct{}),
		logger:          logging.Component(logger, "btree", zap.Uint32("index_id", indexID)),
	}

	page, err := bpm.FetchPage(pagemanager.IndexRootsPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read index roots page: %w", err)
	}
	page.RLock()
	if root, ok := AsIndexRootsPage(page).GetRootID(indexID); ok {
		t.rootPageID = root
	}
	page.RUnlock()
	if err := bpm.UnpinPage(pagemanager.IndexRootsPageID, false); err != nil {
		return nil, err
	}
	t.logger.Debug("b+ tree opened",
		zap.Int32("root_page_id", int32(t.rootPageID)),
		zap.Int("leaf_max_size", leafMaxSize),
		zap.Int("internal_max_size", internalMaxSize),
	)
	return t, nil
}

// SetKeyFormatter changes how Dump renders keys.
func (t *BPlusTree) SetKeyFormatter(f KeyFormatter) { t.formatKey = f }

func (t *BPlusTree) IndexID() uint32      { return t.indexID }
func (t *BPlusTree) KeySize() int         { return t.keySize }
func (t *BPlusTree) LeafMaxSize() int     { return t.leafMaxSize }
func (t *BPlusTree) InternalMaxSize() int { return t.internalMaxSize }

func (t *BPlusTree) RootPageID() pagemanager.PageID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID
}

func (t *BPlusTree) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.rootPageID.IsValid()
}

// GetValue returns the RowID stored under key.
func (t *BPlusTree) GetValue(key []byte, txn *transaction.Transaction) (record.RowID, bool) {
	k := t.normalizeKey(key)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.rootPageID.IsValid() {
		return record.InvalidRowID, false
	}

	page := t.findLeaf(k, false)
	rid, ok := asLeafPage(page, t.keySize).lookup(k, t.cmp)
	page.RUnlock()
	t.unpin(page.GetPageID(), false)
	return rid, ok
}

// Insert adds key -> value. It returns false if key is already present, in
// which case the stored value is left unchanged.
func (t *BPlusTree) Insert(key []byte, value record.RowID, txn *transaction.Transaction) bool {
	k := t.normalizeKey(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releasePending()

	if !t.rootPageID.IsValid() {
		t.startNewTree(k, value)
		return true
	}

	page := t.findLeaf(k, false)
	page.RUnlock()
	leaf := asLeafPage(page, t.keySize)
	if _, found := leaf.lookup(k, t.cmp); found {
		t.unpin(page.GetPageID(), false)
		return false
	}

	page.Lock()
	size := leaf.insert(k, value, t.cmp)
	page.Unlock()
	if size > leaf.maxSize() {
		t.splitLeaf(page)
	}
	t.unpin(page.GetPageID(), true)
	return true
}

// Remove deletes key. Absent keys are ignored.
func (t *BPlusTree) Remove(key []byte, txn *transaction.Transaction) {
	k := t.normalizeKey(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releasePending()
	if !t.rootPageID.IsValid() {
		return
	}

	page := t.findLeaf(k, false)
	page.RUnlock()
	leaf := asLeafPage(page, t.keySize)
	idx := leaf.keyIndex(k, t.cmp)
	if idx >= leaf.size() || t.cmp(leaf.keyAt(idx), k) != 0 {
		t.unpin(page.GetPageID(), false)
		return
	}

	page.Lock()
	leaf.removeAt(idx)
	page.Unlock()

	if idx == 0 && !leaf.isRoot() && leaf.size() > 0 {
		t.updateParentKey(page)
	}
	deleteLeaf := false
	if leaf.size() < leaf.minSize() {
		deleteLeaf = t.coalesceOrRedistribute(page)
	}
	pageID := page.GetPageID()
	t.unpin(pageID, true)
	if deleteLeaf {
		t.deletePage(pageID)
	}
}

// Destroy frees every node of the tree and removes it from the index roots page.
func (t *BPlusTree) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.rootPageID.IsValid() {
		errs = t.destroySubtree(t.rootPageID, errs)
	}
	t.rootPageID = pagemanager.InvalidPageID

	page := t.mustFetch(pagemanager.IndexRootsPageID)
	page.Lock()
	AsIndexRootsPage(page).Delete(t.indexID)
	page.Unlock()
	t.unpin(pagemanager.IndexRootsPageID, true)
	if err := t.bpm.FlushPage(pagemanager.IndexRootsPageID); err != nil {
		errs = append(errs, err)
	}
	t.releasePending()
	t.logger.Info("b+ tree destroyed")
	return errors.Join(errs...)
}

func (t *BPlusTree) destroySubtree(pageID pagemanager.PageID, errs []error) []error {
	page := t.mustFetch(pageID)
	node := asTreePage(page)
	if !node.isLeaf() {
		internal := asInternalPage(page, t.keySize)
		for i := 0; i < internal.size(); i++ {
			errs = t.destroySubtree(internal.valueAt(i), errs)
		}
	}
	t.unpin(pageID, false)
	if err := t.freePage(pageID); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Dump writes the tree level by level, one line per level.
func (t *BPlusTree) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.rootPageID.IsValid() {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}

	level := []pagemanager.PageID{t.rootPageID}
	for depth := 0; len(level) > 0; depth++ {
		var next []pagemanager.PageID
		var line strings.Builder
		fmt.Fprintf(&line, "L%d:", depth)
		for _, pageID := range level {
			page := t.mustFetch(pageID)
			page.RLock()
			if asTreePage(page).isLeaf() {
				leaf := asLeafPage(page, t.keySize)
				fmt.Fprintf(&line, " [%d p=%d n=%d |", pageID, leaf.parentPageID(), leaf.nextPageID())
				for i := 0; i < leaf.size(); i++ {
					line.WriteString(" " + t.formatKey(leaf.keyAt(i)))
				}
			} else {
				internal := asInternalPage(page, t.keySize)
				fmt.Fprintf(&line, " [%d p=%d | *%d", pageID, internal.parentPageID(), internal.valueAt(0))
				next = append(next, internal.valueAt(0))
				for i := 1; i < internal.size(); i++ {
					fmt.Fprintf(&line, " %s *%d", t.formatKey(internal.keyAt(i)), internal.valueAt(i))
					next = append(next, internal.valueAt(i))
				}
			}
			line.WriteString("]")
			page.RUnlock()
			t.unpin(pageID, false)
		}
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
		level = next
	}
	return nil
}

// startNewTree creates a root leaf holding one pair. Caller holds mu.
func (t *BPlusTree) startNewTree(key []byte, value record.RowID) {
	page, pageID := t.mustNew()
	page.Lock()
	leaf := newLeafView(page.GetData(), t.keySize)
	leaf.init(pageID, pagemanager.InvalidPageID, t.leafMaxSize)
	leaf.insert(key, value, t.cmp)
	page.Unlock()
	t.rootPageID = pageID
	t.updateRootPageID()
	t.unpin(pageID, true)
	t.logger.Debug("started new tree", zap.Int32("root_page_id", int32(pageID)))
}

// findLeaf descends to the leaf that would hold key, or to the leftmost leaf.
// Pages are read-latched hand over hand. The leaf is returned pinned and
// read-latched.
func (t *BPlusTree) findLeaf(key []byte, leftMost bool) *pagemanager.Page {
	page := t.mustFetch(t.rootPageID)
	page.RLock()
	for !asTreePage(page).isLeaf() {
		internal := asInternalPage(page, t.keySize)
		var childID pagemanager.PageID
		if leftMost {
			childID = internal.valueAt(0)
		} else {
			childID = internal.lookup(key, t.cmp)
		}
		child := t.mustFetch(childID)
		child.RLock()
		page.RUnlock()
		t.unpin(page.GetPageID(), false)
		page = child
	}
	return page
}

// splitLeaf moves the upper half of a full leaf into a new right sibling and
// links it into the leaf chain and the parent. page stays pinned by the caller.
func (t *BPlusTree) splitLeaf(page *pagemanager.Page) {
	newPage, newPageID := t.mustNew()
	page.Lock()
	newPage.Lock()
	leaf := asLeafPage(page, t.keySize)
	sibling := newLeafView(newPage.GetData(), t.keySize)
	sibling.init(newPageID, leaf.parentPageID(), t.leafMaxSize)
	leaf.moveHalfTo(sibling)
	sibling.setNextPageID(leaf.nextPageID())
	leaf.setNextPageID(newPageID)
	separator := cloneKey(sibling.keyAt(0))
	newPage.Unlock()
	page.Unlock()

	t.logger.Debug("split leaf", zap.Int32("page_id", int32(page.GetPageID())), zap.Int32("new_page_id", int32(newPageID)))
	t.insertIntoParent(page, separator, newPage)
	t.unpin(newPageID, true)
}

// splitInternal moves the upper half of an overfull internal node into a new
// right sibling and pushes the sibling's first key up.
func (t *BPlusTree) splitInternal(page *pagemanager.Page) {
	newPage, newPageID := t.mustNew()
	page.Lock()
	newPage.Lock()
	node := asInternalPage(page, t.keySize)
	sibling := newInternalView(newPage.GetData(), t.keySize)
	sibling.init(newPageID, node.parentPageID(), t.internalMaxSize)
	node.moveHalfTo(sibling)
	separator := cloneKey(sibling.keyAt(0))
	children := make([]pagemanager.PageID, sibling.size())
	for i := range children {
		children[i] = sibling.valueAt(i)
	}
	newPage.Unlock()
	page.Unlock()

	for _, child := range children {
		t.setParent(child, newPageID)
	}
	t.logger.Debug("split internal", zap.Int32("page_id", int32(page.GetPageID())), zap.Int32("new_page_id", int32(newPageID)))
	t.insertIntoParent(page, separator, newPage)
	t.unpin(newPageID, true)
}

// insertIntoParent links newPage into the parent of oldPage under key,
// splitting upward as needed. Both pages are pinned by the caller and unlatched.
func (t *BPlusTree) insertIntoParent(oldPage *pagemanager.Page, key []byte, newPage *pagemanager.Page) {
	oldNode := asTreePage(oldPage)
	newNode := asTreePage(newPage)
	oldID, newID := oldPage.GetPageID(), newPage.GetPageID()

	if oldNode.isRoot() {
		rootPage, rootID := t.mustNew()
		rootPage.Lock()
		root := newInternalView(rootPage.GetData(), t.keySize)
		root.init(rootID, pagemanager.InvalidPageID, t.internalMaxSize)
		root.populateNewRoot(oldID, key, newID)
		rootPage.Unlock()

		oldPage.Lock()
		oldNode.setParentPageID(rootID)
		oldPage.Unlock()
		newPage.Lock()
		newNode.setParentPageID(rootID)
		newPage.Unlock()

		t.rootPageID = rootID
		t.updateRootPageID()
		t.unpin(rootID, true)
		t.logger.Debug("root split", zap.Int32("root_page_id", int32(rootID)))
		return
	}

	parentID := oldNode.parentPageID()
	parentPage := t.mustFetch(parentID)
	parent := asInternalPage(parentPage, t.keySize)
	parentPage.Lock()
	size := parent.insertNodeAfter(oldID, key, newID)
	parentPage.Unlock()
	newPage.Lock()
	newNode.setParentPageID(parentID)
	newPage.Unlock()

	if size > parent.maxSize() {
		t.splitInternal(parentPage)
	}
	t.unpin(parentID, true)
}

// updateParentKey rewrites the separators above a node whose first key changed,
// walking up while the node is its parent's first child.
func (t *BPlusTree) updateParentKey(page *pagemanager.Page) {
	node := asTreePage(page)
	key := cloneKey(asLeafPage(page, t.keySize).keyAt(0))
	childID, parentID := page.GetPageID(), node.parentPageID()
	for parentID.IsValid() {
		parentPage := t.mustFetch(parentID)
		parent := asInternalPage(parentPage, t.keySize)
		parentPage.Lock()
		idx := parent.valueIndex(childID)
		parent.setKeyAt(idx, key)
		parentPage.Unlock()
		grandparentID := parent.parentPageID()
		t.unpin(parentID, true)
		if idx != 0 {
			return
		}
		childID, parentID = parentID, grandparentID
	}
}

// coalesceOrRedistribute restores the occupancy of an underfull node by
// borrowing from or merging with a sibling. It returns true if the caller must
// delete page once it has unpinned it.
func (t *BPlusTree) coalesceOrRedistribute(page *pagemanager.Page) bool {
	node := asTreePage(page)
	if node.isRoot() {
		return t.adjustRoot(page)
	}

	parentID := node.parentPageID()
	parentPage := t.mustFetch(parentID)
	parent := asInternalPage(parentPage, t.keySize)
	idx := parent.valueIndex(page.GetPageID())
	siblingIdx := idx - 1
	if idx == 0 {
		siblingIdx = 1
	}
	siblingID := parent.valueAt(siblingIdx)
	siblingPage := t.mustFetch(siblingID)
	sibling := asTreePage(siblingPage)

	if sibling.size()+node.size() > node.maxSize() {
		t.redistribute(siblingPage, page, parentPage, idx)
		t.unpin(siblingID, true)
		t.unpin(parentID, true)
		return false
	}

	var deleteNode, deleteParent bool
	if idx == 0 {
		// The right sibling merges into node.
		deleteParent = t.coalesce(page, siblingPage, parentPage, 1)
		t.unpin(siblingID, true)
		t.deletePage(siblingID)
	} else {
		deleteParent = t.coalesce(siblingPage, page, parentPage, idx)
		t.unpin(siblingID, true)
		deleteNode = true
	}
	t.unpin(parentID, true)
	if deleteParent {
		t.deletePage(parentID)
	}
	return deleteNode
}

// coalesce moves every pair of donor into recipient, its left neighbour, and
// drops donor's entry at index from the parent. It returns true if the parent
// must be deleted after it is unpinned.
func (t *BPlusTree) coalesce(recipientPage, donorPage, parentPage *pagemanager.Page, index int) bool {
	parent := asInternalPage(parentPage, t.keySize)
	middleKey := cloneKey(parent.keyAt(index))

	var moved []pagemanager.PageID
	recipientPage.Lock()
	donorPage.Lock()
	if asTreePage(donorPage).isLeaf() {
		asLeafPage(donorPage, t.keySize).moveAllTo(asLeafPage(recipientPage, t.keySize))
	} else {
		donor := asInternalPage(donorPage, t.keySize)
		recipient := asInternalPage(recipientPage, t.keySize)
		start := recipient.size()
		donor.moveAllTo(recipient, middleKey)
		for i := start; i < recipient.size(); i++ {
			moved = append(moved, recipient.valueAt(i))
		}
	}
	donorPage.Unlock()
	recipientPage.Unlock()
	for _, child := range moved {
		t.setParent(child, recipientPage.GetPageID())
	}

	parentPage.Lock()
	parent.remove(index)
	parentPage.Unlock()
	t.logger.Debug("coalesced nodes",
		zap.Int32("page_id", int32(recipientPage.GetPageID())),
		zap.Int32("removed_page_id", int32(donorPage.GetPageID())),
	)

	if parent.size() < parent.minSize() {
		return t.coalesceOrRedistribute(parentPage)
	}
	return false
}

// redistribute moves one pair from sibling into node and fixes the separator.
// nodeIdx is node's slot in the parent; at 0 the sibling is on the right.
func (t *BPlusTree) redistribute(siblingPage, page, parentPage *pagemanager.Page, nodeIdx int) {
	parent := asInternalPage(parentPage, t.keySize)
	moved := pagemanager.InvalidPageID

	siblingPage.Lock()
	page.Lock()
	parentPage.Lock()
	if asTreePage(page).isLeaf() {
		node := asLeafPage(page, t.keySize)
		sibling := asLeafPage(siblingPage, t.keySize)
		if nodeIdx == 0 {
			sibling.moveFirstToEndOf(node)
			parent.setKeyAt(1, sibling.keyAt(0))
		} else {
			sibling.moveLastToFrontOf(node)
			parent.setKeyAt(nodeIdx, node.keyAt(0))
		}
	} else {
		node := asInternalPage(page, t.keySize)
		sibling := asInternalPage(siblingPage, t.keySize)
		if nodeIdx == 0 {
			middleKey := cloneKey(parent.keyAt(1))
			sibling.moveFirstToEndOf(node, middleKey)
			parent.setKeyAt(1, sibling.keyAt(0))
			moved = node.valueAt(node.size() - 1)
		} else {
			middleKey := cloneKey(parent.keyAt(nodeIdx))
			sibling.moveLastToFrontOf(node, middleKey)
			parent.setKeyAt(nodeIdx, node.keyAt(0))
			moved = node.valueAt(0)
		}
	}
	parentPage.Unlock()
	page.Unlock()
	siblingPage.Unlock()

	if moved.IsValid() {
		t.setParent(moved, page.GetPageID())
	}
	t.logger.Debug("redistributed nodes",
		zap.Int32("page_id", int32(page.GetPageID())),
		zap.Int32("sibling_page_id", int32(siblingPage.GetPageID())),
	)
}

// adjustRoot handles an underfull root. It returns true if the old root page
// must be deleted.
func (t *BPlusTree) adjustRoot(page *pagemanager.Page) bool {
	node := asTreePage(page)
	if node.isLeaf() {
		if node.size() > 0 {
			return false
		}
		t.rootPageID = pagemanager.InvalidPageID
		t.updateRootPageID()
		t.logger.Debug("tree emptied")
		return true
	}
	if node.size() != 1 {
		return false
	}
	child := asInternalPage(page, t.keySize).valueAt(0)
	t.rootPageID = child
	t.updateRootPageID()
	t.setParent(child, pagemanager.InvalidPageID)
	t.logger.Debug("root collapsed", zap.Int32("root_page_id", int32(child)))
	return true
}

// updateRootPageID writes the current root through to the index roots page.
func (t *BPlusTree) updateRootPageID() {
	page := t.mustFetch(pagemanager.IndexRootsPageID)
	page.Lock()
	roots := AsIndexRootsPage(page)
	ok := roots.Update(t.indexID, t.rootPageID) || roots.Insert(t.indexID, t.rootPageID)
	page.Unlock()
	t.unpin(pagemanager.IndexRootsPageID, true)
	if !ok {
		panic(fmt.Errorf("%w: cannot register index %d", flushmanager.ErrIndexRootsFull, t.indexID))
	}
	if err := t.bpm.FlushPage(pagemanager.IndexRootsPageID); err != nil {
		t.logger.Error("failed to flush index roots page", zap.Error(err))
	}
}

func (t *BPlusTree) setParent(pageID, parentID pagemanager.PageID) {
	page := t.mustFetch(pageID)
	page.Lock()
	asTreePage(page).setParentPageID(parentID)
	page.Unlock()
	t.unpin(pageID, true)
}

func (t *BPlusTree) normalizeKey(key []byte) []byte {
	if len(key) == t.keySize {
		return key
	}
	if len(key) > t.keySize {
		panic(fmt.Errorf("%w: %d byte key for %d byte index", flushmanager.ErrKeyTooLarge, len(key), t.keySize))
	}
	k := make([]byte, t.keySize)
	copy(k, key)
	return k
}

func (t *BPlusTree) mustFetch(pageID pagemanager.PageID) *pagemanager.Page {
	page, err := t.bpm.FetchPage(pageID)
	if err != nil {
		panic(fmt.Errorf("%w: fetching page %d: %w", flushmanager.ErrOutOfMemory, pageID, err))
	}
	return page
}

func (t *BPlusTree) mustNew() (*pagemanager.Page, pagemanager.PageID) {
	page, pageID, err := t.bpm.NewPage()
	if err != nil {
		panic(fmt.Errorf("%w: allocating tree page: %w", flushmanager.ErrOutOfMemory, err))
	}
	return page, pageID
}

func (t *BPlusTree) unpin(pageID pagemanager.PageID, dirty bool) {
	if err := t.bpm.UnpinPage(pageID, dirty); err != nil {
		t.logger.Error("unpin failed", zap.Int32("page_id", int32(pageID)), zap.Error(err))
	}
}

func (t *BPlusTree) deletePage(pageID pagemanager.PageID) {
	if err := t.freePage(pageID); err != nil {
		t.logger.Warn("failed to delete tree page", zap.Int32("page_id", int32(pageID)), zap.Error(err))
	}
}

// freePage deletes a page that is no longer part of the tree. A page still
// pinned by an iterator is parked in pendingFree instead.
func (t *BPlusTree) freePage(pageID pagemanager.PageID) error {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	err := t.bpm.DeletePage(pageID)
	if errors.Is(err, flushmanager.ErrPagePinned) {
		t.pendingFree[pageID] = struct{}{}
		t.logger.Debug("tree page free deferred", zap.Int32("page_id", int32(pageID)))
		return nil
	}
	return err
}

// releasePending retries the deletes that were deferred by freePage.
func (t *BPlusTree) releasePending() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for pageID := range t.pendingFree {
		err := t.bpm.DeletePage(pageID)
		if errors.Is(err, flushmanager.ErrPagePinned) {
			continue
		}
		delete(t.pendingFree, pageID)
		if err != nil {
			t.logger.Warn("failed to delete tree page", zap.Int32("page_id", int32(pageID)), zap.Error(err))
		}
	}
}

// PendingFrees returns how many removed pages are waiting for their pins to
// be released.
func (t *BPlusTree) PendingFrees() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pendingFree)
}
