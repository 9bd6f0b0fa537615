package squashfs

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// File is a convenience wrapper presenting a regular-file Inode as an
// io/fs.File, grounded on the teacher's SectionReader-backed wrapper.
type File struct {
	*io.SectionReader
	ino  *Inode
	name string
}

// FileDir presents a directory Inode as an fs.ReadDirFile.
type FileDir struct {
	ino  *Inode
	name string
	it   *dirIterator
}

type fileinfo struct {
	ino  *Inode
	name string
}

var (
	_ fs.File        = (*File)(nil)
	_ io.ReaderAt    = (*File)(nil)
	_ fs.ReadDirFile = (*FileDir)(nil)
	_ fs.FileInfo    = (*fileinfo)(nil)
)

// OpenFile returns an fs.File for ino. Directories implement
// fs.ReadDirFile; everything else implements io.Seeker via SectionReader.
func (ino *Inode) OpenFile(name string) fs.File {
	if ino.IsDir() {
		return &FileDir{ino: ino, name: name}
	}
	sec := io.NewSectionReader(ino, 0, int64(ino.FileSize))
	return &File{SectionReader: sec, ino: ino, name: name}
}

func (f *File) Stat() (fs.FileInfo, error) { return &fileinfo{name: path.Base(f.name), ino: f.ino}, nil }
func (f *File) Sys() any                   { return f.ino }
func (f *File) Close() error                { return nil }

func (d *FileDir) Read(p []byte) (int, error) { return 0, fs.ErrInvalid }
func (d *FileDir) Stat() (fs.FileInfo, error) {
	return &fileinfo{name: path.Base(d.name), ino: d.ino}, nil
}
func (d *FileDir) Sys() any { return d.ino }
func (d *FileDir) Close() error {
	d.it = nil
	return nil
}

func (d *FileDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.it == nil {
		it, err := d.ino.arc.dirIterator(d.ino)
		if err != nil {
			return nil, err
		}
		d.it = it
	}
	return d.it.ReadDir(n)
}

func (fi *fileinfo) Name() string       { return fi.name }
func (fi *fileinfo) Size() int64        { return int64(fi.ino.FileSize) }
func (fi *fileinfo) Mode() fs.FileMode  { return fi.ino.Mode() }
func (fi *fileinfo) ModTime() time.Time { return time.Unix(int64(fi.ino.ModTime), 0) }
func (fi *fileinfo) IsDir() bool        { return fi.ino.IsDir() }
func (fi *fileinfo) Sys() any           { return fi.ino }

// fileBlockIterator is the blockIterator of spec.md §4.J's file reader: it
// walks a regular file's data blocks in order and, once those are
// exhausted, yields the trailing fragment tail as one final run.
// readDataBlock/readFragmentTail already copy each block out of the Extract
// Manager's cache and release it before returning, so the runs this
// produces never hold a cache entry open; release is a no-op.
type fileBlockIterator struct {
	arc *Archive
	ino *Inode

	idx          int
	doneFragment bool
	cur          []byte
}

func newFileBlockIterator(arc *Archive, ino *Inode, startBlock int) *fileBlockIterator {
	return &fileBlockIterator{arc: arc, ino: ino, idx: startBlock}
}

func (it *fileBlockIterator) next(desiredSize int) error {
	it.cur = nil
	if it.idx < len(it.ino.BlockSizes) {
		chunk, err := it.arc.readDataBlock(it.ino, it.idx)
		if err != nil {
			return err
		}
		it.idx++
		it.cur = chunk
		return nil
	}
	if !it.doneFragment && it.ino.HasFragment() {
		it.doneFragment = true
		chunk, err := it.arc.readFragmentTail(it.ino)
		if err != nil {
			return err
		}
		it.cur = chunk
		return nil
	}
	return errEOF
}

func (it *fileBlockIterator) data() []byte { return it.cur }
func (it *fileBlockIterator) release()     { it.cur = nil }

// ReadAt implements io.ReaderAt over a regular file's data blocks and
// trailing fragment (spec.md §3.5, §4.J): it wraps fileBlockIterator in the
// Generic Reader (§4.E), which transparently stitches a request that spans
// a block/fragment boundary, the same way every table and directory access
// in this module does.
func (ino *Inode) ReadAt(p []byte, off int64) (int, error) {
	if !ino.IsRegular() {
		return 0, ErrNotAFile
	}
	if off < 0 {
		return 0, ErrOutOfBounds
	}
	if off >= int64(ino.FileSize) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	arc := ino.arc
	blockSz := int64(arc.sb.BlockSize)

	want := int64(len(p))
	if off+want > int64(ino.FileSize) {
		want = int64(ino.FileSize) - off
	}

	startBlock := int(off / blockSz)
	r := newReader(newFileBlockIterator(arc, ino, startBlock))
	defer r.Close()

	relOff := off - int64(startBlock)*blockSz
	if err := r.Advance(int(relOff), int(want)); err != nil {
		return 0, err
	}
	n := copy(p, r.Data())

	var err error
	if off+int64(n) >= int64(ino.FileSize) {
		err = io.EOF
	}
	return n, err
}

// readDataBlock decompresses (or slices, if sparse/uncompressed) the idx'th
// full-size data block of ino.
func (a *Archive) readDataBlock(ino *Inode, idx int) ([]byte, error) {
	bs := ino.BlockSizes[idx]
	if bs.Size() == 0 {
		// A zero-size entry marks a hole in a sparse file: the block
		// reads as all zero bytes without ever being stored.
		return make([]byte, a.sb.BlockSize), nil
	}

	addr := int64(ino.BlocksStart)
	for i := 0; i < idx; i++ {
		addr += int64(ino.BlockSizes[i].Size())
	}

	mr := newMapReader(a.mm, addr, addr+int64(bs.Size()))
	if err := mr.Advance(0, int(bs.Size())); err != nil {
		return nil, err
	}
	raw := mr.Data()

	if !bs.Compressed() {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	// Borrow the cached entry just long enough to copy it out, then release
	// it immediately: ReadAt never holds a chunk past its own copy loop, so
	// there is no cursor object to pair the release against later (compare
	// metaBlockIterator.release, which pairs across next() calls instead).
	data, err := a.em.uncompress(addr, raw, int(a.sb.BlockSize))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	a.em.release(addr)
	return out, nil
}

// readFragmentTail decompresses ino's shared fragment block and returns the
// slice belonging to this inode (spec.md §3.6).
func (a *Archive) readFragmentTail(ino *Inode) ([]byte, error) {
	ft, err := a.fragmentTable()
	if err != nil {
		return nil, err
	}
	if ft == nil {
		return nil, ErrNoFragmentTable
	}
	fe, err := ft.Get(ino.FragBlockIndex, a.archiveEnd())
	if err != nil {
		return nil, err
	}

	mr := newMapReader(a.mm, int64(fe.Start), int64(fe.Start)+int64(fe.Size()))
	if err := mr.Advance(0, int(fe.Size())); err != nil {
		return nil, err
	}
	raw := mr.Data()

	var block []byte
	if !fe.Compressed() {
		block = make([]byte, len(raw))
		copy(block, raw)
	} else {
		data, uerr := a.em.uncompress(int64(fe.Start), raw, int(a.sb.BlockSize))
		if uerr != nil {
			return nil, uerr
		}
		block = make([]byte, len(data))
		copy(block, data)
		a.em.release(int64(fe.Start))
	}

	tailLen := int(int64(ino.FileSize) % int64(a.sb.BlockSize))
	lo := int(ino.BlockOffset)
	hi := lo + tailLen
	if hi > len(block) {
		return nil, wrapErr(KindStructure, int64(fe.Start), ErrOutOfBounds)
	}

	return block[lo:hi], nil
}
