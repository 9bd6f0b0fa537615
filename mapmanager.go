package squashfs

import (
	"container/list"
	"sync"
)

// mapBlockEntry is a refcounted cache entry for one block-index worth of
// mapped source bytes (spec.md §4.A).
type mapBlockEntry struct {
	data []byte
	refs int32
}

// mapManager presents the archive as a sequence of fixed-size blocks with
// LRU-cached, reference-counted windows over an underlying Mapper. One mutex
// guards insert/evict; readers that already hold a slice never take it.
type mapManager struct {
	mapper    Mapper
	blockSize int64
	size      int64

	mu     sync.Mutex
	blocks map[int64]*mapBlockEntry
	lru    *list.List
	lruEl  map[int64]*list.Element
	lruCap int
}

func newMapManager(m Mapper, blockSize int64, lruCap int) *mapManager {
	size := m.Size()
	if blockSize <= 0 {
		blockSize = size
		if blockSize <= 0 {
			blockSize = 1
		}
	}
	return &mapManager{
		mapper:    m,
		blockSize: blockSize,
		size:      size,
		blocks:    make(map[int64]*mapBlockEntry),
		lru:       list.New(),
		lruEl:     make(map[int64]*list.Element),
		lruCap:    lruCap,
	}
}

func (mm *mapManager) Size() int64      { return mm.size }
func (mm *mapManager) BlockSize() int64 { return mm.blockSize }

// unpinLocked removes idx from the LRU if present, e.g. because a fresh Get
// is about to hand out a reference to it again.
func (mm *mapManager) unpinLocked(idx int64) {
	if el, ok := mm.lruEl[idx]; ok {
		mm.lru.Remove(el)
		delete(mm.lruEl, idx)
	}
}

// Get returns the cached slice for block index idx, incrementing its
// refcount. The slice is valid until a matching Release.
func (mm *mapManager) Get(idx int64) ([]byte, error) {
	off := idx * mm.blockSize
	if off >= mm.size {
		return nil, ErrOutOfBounds
	}

	mm.mu.Lock()
	if b, ok := mm.blocks[idx]; ok {
		b.refs++
		mm.unpinLocked(idx)
		mm.mu.Unlock()
		return b.data, nil
	}
	mm.mu.Unlock()

	sz := mm.blockSize
	if off+sz > mm.size {
		sz = mm.size - off
	}
	data, err := mm.mapper.Map(off, int(sz))
	if err != nil {
		return nil, wrapErr(KindEnvironment, off, err)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if b, ok := mm.blocks[idx]; ok {
		// Lost the race: someone else inserted first. Discard our copy,
		// return theirs — no correctness lost, per spec.md §4.C/§4.A.
		mm.mapper.Release(data)
		b.refs++
		mm.unpinLocked(idx)
		return b.data, nil
	}
	mm.blocks[idx] = &mapBlockEntry{data: data, refs: 1}
	return data, nil
}

// Release decrements the refcount for block idx. On reaching zero the block
// is pinned in the LRU rather than torn down immediately, so a block
// recently released and re-requested avoids a re-map.
func (mm *mapManager) Release(idx int64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	b, ok := mm.blocks[idx]
	if !ok {
		return
	}
	b.refs--
	if b.refs > 0 {
		return
	}
	if mm.lruCap <= 0 {
		mm.mapper.Release(b.data)
		delete(mm.blocks, idx)
		return
	}
	mm.lruEl[idx] = mm.lru.PushFront(idx)
	for mm.lru.Len() > mm.lruCap {
		back := mm.lru.Back()
		if back == nil {
			break
		}
		bi := back.Value.(int64)
		mm.lru.Remove(back)
		delete(mm.lruEl, bi)
		if blk, ok := mm.blocks[bi]; ok && blk.refs == 0 {
			mm.mapper.Release(blk.data)
			delete(mm.blocks, bi)
		}
	}
}

// Close tears down every cached block and the underlying mapper.
func (mm *mapManager) Close() error {
	mm.mu.Lock()
	for idx, b := range mm.blocks {
		mm.mapper.Release(b.data)
		delete(mm.blocks, idx)
	}
	mm.mu.Unlock()
	return mm.mapper.Close()
}

// mapBlockIterator is the blockIterator used by mapReader (spec.md §4.F): it
// pulls whole blocks from a mapManager, trimming the first block to start at
// base and the last to stop at limit.
type mapBlockIterator struct {
	mm      *mapManager
	base    int64
	limit   int64
	nextIdx int64

	cur     []byte
	curIdx  int64
	curHeld bool
}

func newMapBlockIterator(mm *mapManager, base, limit int64) *mapBlockIterator {
	return &mapBlockIterator{
		mm:      mm,
		base:    base,
		limit:   limit,
		nextIdx: base / mm.blockSize,
	}
}

func (it *mapBlockIterator) next(desiredSize int) error {
	it.release()

	blockStart := it.nextIdx * it.mm.blockSize
	if blockStart >= it.limit || blockStart >= it.mm.size {
		return errEOF
	}
	data, err := it.mm.Get(it.nextIdx)
	if err != nil {
		return err
	}

	lo := int64(0)
	if blockStart < it.base {
		lo = it.base - blockStart
	}
	hi := int64(len(data))
	if blockStart+hi > it.limit {
		hi = it.limit - blockStart
	}
	if lo > hi {
		lo = hi
	}

	it.cur = data[lo:hi]
	it.curIdx = it.nextIdx
	it.curHeld = true
	it.nextIdx++
	return nil
}

func (it *mapBlockIterator) data() []byte { return it.cur }

func (it *mapBlockIterator) release() {
	if it.curHeld {
		it.mm.Release(it.curIdx)
		it.curHeld = false
		it.cur = nil
	}
}
