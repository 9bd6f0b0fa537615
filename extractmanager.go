package squashfs

import (
	"container/list"
	"sync"
)

// extractEntry is one decompressed block, refcounted and keyed by its
// compressed source address so identical requests (e.g. two directory
// entries pointing at the same metablock) share one decompression.
type extractEntry struct {
	data []byte
	refs int32
	done chan struct{} // closed once data is populated; nil once settled
	err  error
}

// extractManager decompresses blocks on demand and caches the result keyed
// by compressed address (spec.md §4.C). The mutex is held only around map
// bookkeeping; it is never held while a decompressor runs, so one slow
// codec invocation never blocks unrelated lookups.
type extractManager struct {
	comp SquashComp
	ext  Extractor

	mu      sync.Mutex
	entries map[int64]*extractEntry
	lru     *list.List
	lruEl   map[int64]*list.Element
	lruCap  int
}

func newExtractManager(comp SquashComp, lruCap int) (*extractManager, error) {
	ext, err := lookupExtractor(comp)
	if err != nil {
		return nil, err
	}
	return &extractManager{
		comp:    comp,
		ext:     ext,
		entries: make(map[int64]*extractEntry),
		lru:     list.New(),
		lruEl:   make(map[int64]*list.Element),
		lruCap:  lruCap,
	}, nil
}

func (em *extractManager) unpinLocked(addr int64) {
	if el, ok := em.lruEl[addr]; ok {
		em.lru.Remove(el)
		delete(em.lruEl, addr)
	}
}

// uncompress returns the decompressed form of src (read from compressed
// offset addr, used purely as a cache key), decompressing at most once per
// distinct addr even under concurrent callers.
func (em *extractManager) uncompress(addr int64, src []byte, hint int) ([]byte, error) {
	em.mu.Lock()
	if e, ok := em.entries[addr]; ok {
		for e.done != nil {
			done := e.done
			em.mu.Unlock()
			<-done
			em.mu.Lock()
			e = em.entries[addr]
			if e == nil {
				em.mu.Unlock()
				return em.uncompress(addr, src, hint)
			}
		}
		if e.err != nil {
			em.mu.Unlock()
			return nil, e.err
		}
		e.refs++
		em.unpinLocked(addr)
		em.mu.Unlock()
		return e.data, nil
	}

	e := &extractEntry{done: make(chan struct{})}
	em.entries[addr] = e
	em.mu.Unlock()

	dst := make([]byte, 0, hint)
	data, err := em.ext.Decompress(dst, src)

	em.mu.Lock()
	e.data = data
	e.err = err
	if err == nil {
		e.refs = 1
	} else {
		delete(em.entries, addr)
	}
	close(e.done)
	e.done = nil
	em.mu.Unlock()

	if err != nil {
		return nil, wrapErr(KindCompression, addr, err)
	}
	return data, nil
}

// release decrements the refcount for the block decompressed from addr,
// pinning it in the LRU once it reaches zero rather than discarding it
// immediately.
func (em *extractManager) release(addr int64) {
	em.mu.Lock()
	defer em.mu.Unlock()
	e, ok := em.entries[addr]
	if !ok || e.done != nil {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	if em.lruCap <= 0 {
		delete(em.entries, addr)
		return
	}
	em.lruEl[addr] = em.lru.PushFront(addr)
	for em.lru.Len() > em.lruCap {
		back := em.lru.Back()
		if back == nil {
			break
		}
		a := back.Value.(int64)
		em.lru.Remove(back)
		delete(em.lruEl, a)
		if be, ok := em.entries[a]; ok && be.refs == 0 {
			delete(em.entries, a)
		}
	}
}
