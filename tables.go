package squashfs

import "encoding/binary"

// lookupTable is the generic "table of fixed-size records, indexed through a
// block of metablock-start pointers" structure the format reuses for the id,
// export, and xattr-id tables (spec.md §3.7-§3.9, §4.I; grounded on the
// original implementation's generic table reader, which is parameterized
// the same way: a start offset, an element size, and an element count).
//
// Layout: ceil(count*elemSize/8192) pointers, each 8 bytes, stored
// back-to-back starting at tableStart; each pointer is the raw offset of one
// metablock holding up to 8192/elemSize records.
type lookupTable struct {
	mm    *mapManager
	em    *extractManager
	order binary.ByteOrder

	start    int64
	count    int
	elemSize int

	ptrs []uint64
}

func loadLookupTable(mm *mapManager, em *extractManager, start int64, count, elemSize int, archiveEnd int64) (*lookupTable, error) {
	lt := &lookupTable{mm: mm, em: em, order: binary.LittleEndian, start: start, count: count, elemSize: elemSize}
	if count == 0 {
		return lt, nil
	}
	perBlock := metablockSize / elemSize
	nptrs := (count + perBlock - 1) / perBlock

	mr := newMapReader(mm, start, start+int64(nptrs)*8)
	if err := mr.Advance(0, nptrs*8); err != nil {
		return nil, err
	}
	raw := mr.Data()
	lt.ptrs = make([]uint64, nptrs)
	for i := range lt.ptrs {
		lt.ptrs[i] = lt.order.Uint64(raw[i*8 : i*8+8])
	}
	return lt, nil
}

// read fetches the raw elemSize-byte record at logical index idx.
func (lt *lookupTable) read(idx int, archiveEnd int64) ([]byte, error) {
	if idx < 0 || idx >= lt.count {
		return nil, ErrOutOfBounds
	}
	perBlock := metablockSize / lt.elemSize
	blockIdx := idx / perBlock
	inner := (idx % perBlock) * lt.elemSize

	mr := newMetaReader(lt.mm, lt.em, int64(lt.ptrs[blockIdx]), archiveEnd)
	if err := mr.Advance(inner, lt.elemSize); err != nil {
		return nil, err
	}
	out := make([]byte, lt.elemSize)
	copy(out, mr.Data())
	return out, nil
}

// idTable resolves a 16-bit uid/gid index (as stored on an inode) to the
// 32-bit id the archive actually recorded (spec.md §3.7; the format never
// stores raw uids/gids on inodes, only indices into this table — grounded
// on the original id_table implementation: element size 4, count ==
// superblock.id_count).
type idTable struct {
	lt *lookupTable
}

func loadIDTable(mm *mapManager, em *extractManager, sb *Superblock, archiveEnd int64) (*idTable, error) {
	lt, err := loadLookupTable(mm, em, int64(sb.IDTableStart), int(sb.IDCount), 4, archiveEnd)
	if err != nil {
		return nil, err
	}
	return &idTable{lt: lt}, nil
}

func (t *idTable) Lookup(idx uint16, archiveEnd int64) (uint32, error) {
	b, err := t.lt.read(int(idx), archiveEnd)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// exportTable resolves an NFS-exportable inode NUMBER (1-based) to the
// inodeRef needed to actually locate it, present only when the superblock's
// EXPORTABLE flag is set (spec.md §3.8; element size 8, count ==
// superblock.inode_count, index == inode number - 1, grounded on the
// original export_table implementation).
type exportTable struct {
	lt *lookupTable
}

func loadExportTable(mm *mapManager, em *extractManager, sb *Superblock, archiveEnd int64) (*exportTable, error) {
	if !sb.HasExportTable() {
		return nil, nil
	}
	lt, err := loadLookupTable(mm, em, int64(sb.ExportTableStart), int(sb.InodeCount), 8, archiveEnd)
	if err != nil {
		return nil, err
	}
	return &exportTable{lt: lt}, nil
}

func (t *exportTable) Resolve(inodeNumber uint32, archiveEnd int64) (inodeRef, error) {
	if inodeNumber < 1 {
		return 0, ErrOutOfBounds
	}
	b, err := t.lt.read(int(inodeNumber-1), archiveEnd)
	if err != nil {
		return 0, err
	}
	return inodeRef(binary.LittleEndian.Uint64(b)), nil
}

// fragmentEntry is one record of the fragment table (spec.md §3.6): the
// location and on-disk size of one shared "tail block" that multiple files'
// final, sub-block-sized fragments are packed into.
type fragmentEntry struct {
	Start    uint64
	SizeInfo uint32
}

// Compressed reports whether this fragment block is stored compressed; bit
// 24 of size_info is the "uncompressed" flag and the low 24 bits are size.
func (fe fragmentEntry) Compressed() bool { return fe.SizeInfo&0x01000000 == 0 }
func (fe fragmentEntry) Size() uint32     { return fe.SizeInfo &^ 0x01000000 }

const fragmentEntrySize = 16

// fragmentTable indexes the fragment blocks referenced by regular-file
// inodes' fragment_block_index field (spec.md §3.6, §4.I).
type fragmentTable struct {
	lt *lookupTable
}

func loadFragmentTable(mm *mapManager, em *extractManager, sb *Superblock, archiveEnd int64) (*fragmentTable, error) {
	if !sb.HasFragmentTable() {
		return nil, nil
	}
	lt, err := loadLookupTable(mm, em, int64(sb.FragmentTableStart), int(sb.FragmentEntryCount), fragmentEntrySize, archiveEnd)
	if err != nil {
		return nil, err
	}
	return &fragmentTable{lt: lt}, nil
}

func (t *fragmentTable) Get(idx uint32, archiveEnd int64) (fragmentEntry, error) {
	b, err := t.lt.read(int(idx), archiveEnd)
	if err != nil {
		return fragmentEntry{}, err
	}
	return fragmentEntry{
		Start:    binary.LittleEndian.Uint64(b[0:8]),
		SizeInfo: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}
