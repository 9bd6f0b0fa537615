package squashfs

import "encoding/binary"

const metablockSize = 8192

// metaBlockIterator is the blockIterator that walks the 8 KiB-framed,
// individually-compressed metadata blocks used for inodes, directory
// entries, and the xattr tables (spec.md §3.3, §4.D). Each run it produces
// is one fully decompressed metablock (or its uncompressed bytes verbatim).
type metaBlockIterator struct {
	raw *mapReader
	em  *extractManager

	rawPos int64 // absolute offset of the next metablock header
	limit  int64

	cur     []byte
	curAddr int64
	held    bool
}

// newMetaBlockIterator starts reading metablocks from rawStart, a position
// that must itself be the start of a metablock header (e.g. a table's
// recorded start offset, or an inode reference's outer/metablock-index
// component added to the owning table's start).
func newMetaBlockIterator(mm *mapManager, em *extractManager, rawStart, rawLimit int64) *metaBlockIterator {
	return &metaBlockIterator{
		raw:    newMapReader(mm, rawStart, rawLimit),
		em:     em,
		rawPos: rawStart,
		limit:  rawLimit,
	}
}

func (it *metaBlockIterator) next(desiredSize int) error {
	it.release()

	if it.rawPos >= it.limit {
		return errEOF
	}
	if err := it.raw.Advance(0, 2); err != nil {
		return err
	}
	header := binary.LittleEndian.Uint16(it.raw.Data())

	compressed := header&0x8000 == 0
	size := int(header & 0x7fff)
	if size > metablockSize {
		return wrapErr(KindStructure, it.rawPos, ErrMetablockTooBig)
	}

	payloadOff := it.rawPos + 2
	if err := it.raw.Advance(0, size); err != nil {
		return err
	}
	payload := it.raw.Data()

	var data []byte
	if !compressed {
		data = make([]byte, len(payload))
		copy(data, payload)
	} else {
		var err error
		data, err = it.em.uncompress(payloadOff, payload, metablockSize)
		if err != nil {
			return err
		}
		it.held = true
		it.curAddr = payloadOff
	}

	it.cur = data
	it.rawPos = payloadOff + int64(size)
	return nil
}

func (it *metaBlockIterator) data() []byte { return it.cur }

func (it *metaBlockIterator) release() {
	if it.held {
		it.em.release(it.curAddr)
		it.held = false
	}
	it.cur = nil
}
