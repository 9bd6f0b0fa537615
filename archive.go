package squashfs

import (
	"io"
	"io/fs"
	"os"
	"sync"
)

// Archive is the read-only facade over one SquashFS image (spec.md §4.N):
// every other component is reached only through it. Superblock parsing and
// the mandatory tables load eagerly at construction; the optional tables
// (export, fragment, xattr) and the inode-number index build up lazily as
// they're first needed.
type Archive struct {
	cfg *config

	mm *mapManager
	em *extractManager

	sb *Superblock
	ids *idTable

	exportOnce sync.Once
	exports    *exportTable
	exportErr  error

	fragOnce sync.Once
	frags    *fragmentTable
	fragErr  error

	xattrOnce sync.Once
	xattrs    *xattrIDTable
	xattrErr  error

	rootIno   *Inode
	rootInoN  uint32 // real on-disk inode number of the root, swapped to 1

	inoMu  sync.RWMutex
	inoIdx map[uint32]inodeRef
}

// Open opens the SquashFS image at path, mmapping it read-only.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := NewFileMapper(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return New(m, opts...)
}

// NewFromReaderAt builds an Archive over any io.ReaderAt of known size,
// without requiring an *os.File (spec.md §6.1's "any byte source" goal).
func NewFromReaderAt(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	return New(NewWindowMapper(r, size), opts...)
}

// New builds an Archive over an already-constructed Mapper.
func New(m Mapper, opts ...Option) (*Archive, error) {
	cfg := defaultConfig()
	cfg.mapper = m
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			m.Close()
			return nil, err
		}
	}
	cfg.mapper = newOffsetMapper(cfg.mapper, cfg.archiveOffset)

	sbBuf, err := cfg.mapper.Map(0, superblockSize)
	if err != nil {
		cfg.mapper.Close()
		return nil, err
	}
	sb, err := parseSuperblock(sbBuf)
	if err != nil {
		cfg.mapper.Close()
		return nil, err
	}
	cfg.mapper.Release(sbBuf)

	blockN := int64(cfg.mapperBlockSize)
	if blockN <= 0 {
		blockN = int64(sb.BlockSize)
	}
	mm := newMapManager(cfg.mapper, blockN, cfg.mapperLRUSize)

	em, err := newExtractManager(sb.CompressionID, cfg.compressionLRU)
	if err != nil {
		mm.Close()
		return nil, err
	}

	a := &Archive{
		cfg:    cfg,
		mm:     mm,
		em:     em,
		sb:     sb,
		inoIdx: make(map[uint32]inodeRef),
	}

	ids, err := loadIDTable(mm, em, sb, a.archiveEnd())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ids = ids

	root, err := a.inodeByRef(inodeRef(sb.RootInodeRef))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rootIno = root
	a.rootInoN = root.Number
	a.inoIdx[1] = inodeRef(sb.RootInodeRef)

	return a, nil
}

func (a *Archive) archiveEnd() int64 { return a.mm.Size() }

// Superblock returns the parsed archive header.
func (a *Archive) Superblock() *Superblock { return a.sb }

func (a *Archive) exportTable() (*exportTable, error) {
	a.exportOnce.Do(func() {
		a.exports, a.exportErr = loadExportTable(a.mm, a.em, a.sb, a.archiveEnd())
	})
	return a.exports, a.exportErr
}

func (a *Archive) fragmentTable() (*fragmentTable, error) {
	a.fragOnce.Do(func() {
		a.frags, a.fragErr = loadFragmentTable(a.mm, a.em, a.sb, a.archiveEnd())
	})
	return a.frags, a.fragErr
}

func (a *Archive) xattrTable() (*xattrIDTable, error) {
	a.xattrOnce.Do(func() {
		a.xattrs, a.xattrErr = loadXattrIDTable(a.mm, a.em, a.sb, a.archiveEnd())
	})
	return a.xattrs, a.xattrErr
}

// inodeByRef decodes the inode located at ref directly.
func (a *Archive) inodeByRef(ref inodeRef) (*Inode, error) {
	mr, err := newInodeReader(a.mm, a.em, int64(a.sb.InodeTableStart), ref, a.archiveEnd())
	if err != nil {
		return nil, err
	}
	ino, err := decodeInode(a.sb, mr)
	if err != nil {
		return nil, err
	}
	ino.arc = a
	ino.ref = ref
	return ino, nil
}

// GetInode resolves a public inode NUMBER (as surfaced through direntry /
// fs.FileInfo.Sys()) to its Inode, per spec.md §4.N's three-tier strategy:
// the dense in-memory index populated by traversal, falling back to the
// export table, and finally erroring out per ErrInodeNotExported.
func (a *Archive) GetInode(number uint64) (*Inode, error) {
	n := number - a.cfg.inoOfft
	if n == 1 {
		return a.rootIno, nil
	}
	if uint32(n) == a.rootInoN {
		n = 1
	}

	a.inoMu.RLock()
	ref, ok := a.inoIdx[uint32(n)]
	a.inoMu.RUnlock()
	if ok {
		return a.inodeByRef(ref)
	}

	et, err := a.exportTable()
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, ErrInodeNotExported
	}
	ref, err = et.Resolve(uint32(n), a.archiveEnd())
	if err != nil {
		return nil, err
	}
	ino, err := a.inodeByRef(ref)
	if err != nil {
		return nil, err
	}
	if err := a.publish(uint32(n), ref); err != nil {
		return nil, err
	}
	return ino, nil
}

// publish records number -> ref in the dense index, refusing to silently
// overwrite a conflicting mapping (spec.md §4.N consistency invariant).
func (a *Archive) publish(number uint32, ref inodeRef) error {
	a.inoMu.Lock()
	defer a.inoMu.Unlock()
	if existing, ok := a.inoIdx[number]; ok {
		if existing != ref {
			return ErrInodeMapInconsistent
		}
		return nil
	}
	a.inoIdx[number] = ref
	return nil
}

// Xattrs returns the xattr key/value pairs attached to ino, or nil if ino
// has none. It returns ErrNoXattrTable if ino names an xattr index but the
// archive carries no xattr table.
func (a *Archive) Xattrs(ino *Inode) ([]Xattr, error) {
	if !ino.HasXattr() {
		return nil, nil
	}
	xt, err := a.xattrTable()
	if err != nil {
		return nil, err
	}
	if xt == nil {
		return nil, ErrNoXattrTable
	}
	return xt.List(ino.XattrIdx, a.archiveEnd())
}

// Root returns the archive's root directory inode.
func (a *Archive) Root() *Inode { return a.rootIno }

// Close releases every resource held by the archive, including the
// underlying Mapper.
func (a *Archive) Close() error {
	return a.mm.Close()
}

// Open implements fs.FS by resolving name through the path resolver
// (spec.md §4.M), following symlinks along the way.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	ino, err := a.resolvePath(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return ino.OpenFile(name), nil
}

var _ fs.FS = (*Archive)(nil)
