package squashfs

// inodeHeaderSize and extDirBodySize bound the fixed-layout prefix of an
// extended directory inode (16-byte common header + 24-byte directory-ext
// body), after which zero or more directory index records follow directly
// in the same metablock reader (spec.md §3.6; grounded on
// original_source/lib/inode/directory_index_iterator.c).
const inodeHeaderSize = 16
const extDirBodySize = 24

// DirIndexRecord is one sparse seek hint trailing an extended directory
// inode's fixed fields: the byte offset into the directory listing where a
// new fragment begins, the metablock start that fragment's entries are
// read from, and the first name stored in that fragment.
type DirIndexRecord struct {
	Index uint32
	Start uint32
	Name  string
}

// DirIndexIterator walks the directory index records trailing an extended
// directory inode, letting a caller seek near a target name rather than
// scanning the whole listing from the start (spec.md §3.6, §9).
type DirIndexIterator struct {
	mr        *metaReader
	remaining uint16
}

// DirectoryIndex returns an iterator over ino's directory index, present
// only on extended directory inodes (IndexCount may legitimately be zero).
func (ino *Inode) DirectoryIndex() (*DirIndexIterator, error) {
	if ino.Type != XDirType {
		return nil, ErrNoExtendedDirectory
	}
	a := ino.arc
	mr, err := newInodeReader(a.mm, a.em, int64(a.sb.InodeTableStart), ino.ref, a.archiveEnd())
	if err != nil {
		return nil, err
	}
	if err := mr.Advance(inodeHeaderSize+extDirBodySize, 0); err != nil {
		return nil, err
	}
	return &DirIndexIterator{mr: mr, remaining: ino.IndexCount}, nil
}

// Next decodes the following index record, or returns (nil, nil) once the
// index is exhausted.
func (it *DirIndexIterator) Next() (*DirIndexRecord, error) {
	if it.remaining == 0 {
		return nil, nil
	}
	it.remaining--

	idx, err := it.mr.u32()
	if err != nil {
		return nil, err
	}
	start, err := it.mr.u32()
	if err != nil {
		return nil, err
	}
	nameSize, err := it.mr.u32()
	if err != nil {
		return nil, err
	}
	name, err := it.mr.bytes(int(nameSize) + 1)
	if err != nil {
		return nil, err
	}

	return &DirIndexRecord{Index: idx, Start: start, Name: string(name)}, nil
}
