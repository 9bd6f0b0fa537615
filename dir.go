package squashfs

import (
	"io"
	"io/fs"
)

// direntry adapts one decoded directory entry to fs.DirEntry.
type direntry struct {
	name        string
	typ         Type
	ref         inodeRef
	inodeNumber int64
	arc         *Archive
}

var _ fs.DirEntry = (*direntry)(nil)

func (e *direntry) Name() string      { return e.name }
func (e *direntry) IsDir() bool       { return e.typ.IsDir() }
func (e *direntry) Type() fs.FileMode { return e.typ.Mode().Type() }

func (e *direntry) Info() (fs.FileInfo, error) {
	ino, err := e.arc.inodeByRef(e.ref)
	if err != nil {
		return nil, err
	}
	return &fileinfo{name: e.name, ino: ino}, nil
}

// Inode resolves the full Inode behind this entry, following the same
// metablock reference every other inode lookup uses.
func (e *direntry) Inode() (*Inode, error) { return e.arc.inodeByRef(e.ref) }

// dirIterator walks a directory's listing (spec.md §3.4 directory format,
// §4.K): a sequence of header/entry groups, headers naming the metablock
// holding the referenced inodes and a base inode number, entries giving a
// name, type, and delta from that base.
type dirIterator struct {
	arc *Archive
	mr  *metaReader

	startPos int64
	size     int64

	groupLeft  uint32
	groupStart uint32
	groupBase  int64
}

// dirIterator builds a fresh directory listing walker for ino, which must be
// a directory inode.
func (a *Archive) dirIterator(ino *Inode) (*dirIterator, error) {
	if !ino.IsDir() {
		return nil, ErrNotDirectory
	}
	mr, err := newInodeReader(a.mm, a.em, int64(a.sb.DirectoryTableStart), inodeRef(ino.StartBlock<<16), a.archiveEnd())
	if err != nil {
		return nil, err
	}
	if ino.Offset != 0 {
		if err := mr.Advance(int(ino.Offset), 0); err != nil {
			return nil, err
		}
	}
	return &dirIterator{arc: a, mr: mr, startPos: mr.Pos(), size: int64(ino.FileSize)}, nil
}

// dirIteratorNear builds a directory listing walker for dir like dirIterator,
// but first consults dir's directory index (spec.md §3.6, §4.K "fast lookup
// via the directory index") to seek straight to the metadata block fragment
// that could contain target, skipping however many header/entry groups
// precede it instead of linear-scanning the whole listing from byte 0. Falls
// back to a plain dirIterator when dir carries no usable index.
func (a *Archive) dirIteratorNear(dir *Inode, target string) (*dirIterator, error) {
	if dir.Type != XDirType || dir.IndexCount == 0 {
		return a.dirIterator(dir)
	}

	didx, err := dir.DirectoryIndex()
	if err != nil {
		return nil, err
	}

	var best *DirIndexRecord
	for {
		rec, err := didx.Next()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		if rec.Name > target {
			break
		}
		best = rec
	}
	if best == nil {
		return a.dirIterator(dir)
	}

	// Index records always name the start of a fresh metadata block, so the
	// seek lands at inner offset 0 within it; only the outer metablock-start
	// delta (added to the directory's own StartBlock, same convention as
	// every other table offset in this format) changes.
	mr, err := newInodeReader(a.mm, a.em, int64(a.sb.DirectoryTableStart), inodeRef((dir.StartBlock+uint64(best.Start))<<16), a.archiveEnd())
	if err != nil {
		return nil, err
	}
	remaining := int64(dir.FileSize) - int64(best.Index)
	if remaining < 3 {
		remaining = 3
	}
	return &dirIterator{arc: a, mr: mr, startPos: mr.Pos(), size: remaining}, nil
}

// next decodes the next directory entry, or returns io.EOF-compatible
// fs.ErrInvalid-free exhaustion via (nil, nil) once the listing is spent. An
// empty directory's FileSize (3, per spec.md §9) accounts for exactly zero
// entries and no header groups.
func (it *dirIterator) next() (*direntry, error) {
	for it.groupLeft == 0 {
		if it.mr.Pos()-it.startPos >= it.size-3 {
			return nil, nil
		}
		count, err := it.mr.u32()
		if err != nil {
			return nil, err
		}
		start, err := it.mr.u32()
		if err != nil {
			return nil, err
		}
		inoNum, err := it.mr.u32()
		if err != nil {
			return nil, err
		}
		it.groupLeft = count + 1
		it.groupStart = start
		it.groupBase = int64(inoNum)
	}

	offset, err := it.mr.u16()
	if err != nil {
		return nil, err
	}
	inodeOfft, err := it.mr.u16()
	if err != nil {
		return nil, err
	}
	typ, err := it.mr.u16()
	if err != nil {
		return nil, err
	}
	nameSize, err := it.mr.u16()
	if err != nil {
		return nil, err
	}
	nameBuf, err := it.mr.bytes(int(nameSize) + 1)
	if err != nil {
		return nil, err
	}
	it.groupLeft--

	inodeNumber := it.groupBase + int64(int16(inodeOfft))
	ref := inodeRef(uint64(it.groupStart)<<16 | uint64(offset))

	// Opportunistically publish every entry seen while listing, the same
	// way a real lookup populates it: cheap now, saves an export-table
	// round trip if this inode number is looked up directly later.
	_ = it.arc.publish(uint32(inodeNumber), ref)

	return &direntry{
		name:        string(nameBuf),
		typ:         Type(typ),
		ref:         ref,
		inodeNumber: inodeNumber,
		arc:         it.arc,
	}, nil
}

// ReadDir implements the fs.ReadDirFile contract: n<=0 drains the whole
// listing, n>0 returns at most n entries and io.EOF once exhausted.
func (it *dirIterator) ReadDir(n int) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for n <= 0 || len(out) < n {
		e, err := it.next()
		if err != nil {
			return out, err
		}
		if e == nil {
			if n <= 0 {
				return out, nil
			}
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, io.EOF
		}
		out = append(out, e)
	}
	return out, nil
}
