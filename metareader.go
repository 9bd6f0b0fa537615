package squashfs

import "encoding/binary"

// metaReader is the Metablock Reader of spec.md §4.G: a generic reader over
// the decompressed byte stream formed by concatenating successive metablocks
// starting at some table or inode-reference position.
type metaReader struct {
	*reader
	it *metaBlockIterator
}

// newMetaReader returns a metaReader whose stream begins at the metablock
// header located at rawStart, ending once rawLimit is reached.
func newMetaReader(mm *mapManager, em *extractManager, rawStart, rawLimit int64) *metaReader {
	it := newMetaBlockIterator(mm, em, rawStart, rawLimit)
	return &metaReader{reader: newReader(it), it: it}
}

// newInodeReader returns a metaReader positioned at ref's metablock, with
// its first Advance(0, n) call landing n bytes past ref's inner offset —
// exactly the addressing scheme spec.md §3.6/GLOSSARY describes for inode
// references and export-table entries.
func newInodeReader(mm *mapManager, em *extractManager, tableStart int64, ref inodeRef, rawLimit int64) (*metaReader, error) {
	mr := newMetaReader(mm, em, tableStart+int64(ref.Index()), rawLimit)
	if ref.Offset() != 0 {
		if err := mr.Advance(int(ref.Offset()), 0); err != nil {
			return nil, err
		}
	}
	return mr, nil
}

// u16, u32, u64, and bytes are little-endian field readers used throughout
// the inode, directory, and table decoders in place of binary.Read: this
// reader's Advance/Data pull model (spec.md §4.E) doesn't implement
// io.Reader, so fields are pulled one at a time through these instead.

func (mr *metaReader) u16() (uint16, error) {
	if err := mr.Advance(0, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(mr.Data()), nil
}

func (mr *metaReader) u32() (uint32, error) {
	if err := mr.Advance(0, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(mr.Data()), nil
}

func (mr *metaReader) u64() (uint64, error) {
	if err := mr.Advance(0, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(mr.Data()), nil
}

func (mr *metaReader) bytes(n int) ([]byte, error) {
	if err := mr.Advance(0, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, mr.Data())
	return out, nil
}
