package squashfs

import "encoding/binary"

// Bit 8 (0x0100) of the xattr key type marks an indirect (de-duplicated) value: the
// 8-byte payload stored inline is itself a reference to the real value
// elsewhere in the xattr key-value region (spec.md §3.9).
const xattrTypeIndirect = 0x0100
const xattrTypeMask = 0x00ff

// XattrPrefix identifies the namespace byte of an xattr key (user., trusted.,
// security.).
type XattrPrefix uint16

const (
	XattrUser XattrPrefix = iota
	XattrTrusted
	XattrSecurity
)

func (p XattrPrefix) String() string {
	switch p {
	case XattrUser:
		return "user."
	case XattrTrusted:
		return "trusted."
	case XattrSecurity:
		return "security."
	default:
		return "unknown."
	}
}

// Xattr is one decoded key/value pair.
type Xattr struct {
	Prefix XattrPrefix
	Name   string
	Value  []byte
}

func (x Xattr) FullName() string { return x.Prefix.String() + x.Name }

// xattrIDTable is the top-level xattr table (spec.md §3.9, §4.L): a header
// naming where the raw key-value region starts, followed by a generic
// lookupTable of 16-byte (ref, count, size) records, one per xattr id as
// referenced from inode xattr_idx fields.
type xattrIDTable struct {
	mm *mapManager
	em *extractManager

	kvStart int64
	lt      *lookupTable
}

func loadXattrIDTable(mm *mapManager, em *extractManager, sb *Superblock, archiveEnd int64) (*xattrIDTable, error) {
	if !sb.HasXattrTable() {
		return nil, nil
	}
	mr := newMapReader(mm, int64(sb.XattrIDTableStart), int64(sb.XattrIDTableStart)+16)
	if err := mr.Advance(0, 16); err != nil {
		return nil, err
	}
	hdr := mr.Data()
	kvStart := int64(binary.LittleEndian.Uint64(hdr[0:8]))
	count := binary.LittleEndian.Uint32(hdr[8:12])

	lt, err := loadLookupTable(mm, em, int64(sb.XattrIDTableStart)+16, int(count), 16, archiveEnd)
	if err != nil {
		return nil, err
	}
	return &xattrIDTable{mm: mm, em: em, kvStart: kvStart, lt: lt}, nil
}

type xattrLookup struct {
	Ref   inodeRef
	Count uint32
	Size  uint32
}

func (t *xattrIDTable) lookup(id uint32, archiveEnd int64) (xattrLookup, error) {
	b, err := t.lt.read(int(id), archiveEnd)
	if err != nil {
		return xattrLookup{}, err
	}
	return xattrLookup{
		Ref:   inodeRef(binary.LittleEndian.Uint64(b[0:8])),
		Count: binary.LittleEndian.Uint32(b[8:12]),
		Size:  binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// List decodes every xattr attached to the inode whose xattr_idx is id,
// chasing indirect values through the shared kv region as needed.
func (t *xattrIDTable) List(id uint32, archiveEnd int64) ([]Xattr, error) {
	if id == 0xffffffff {
		return nil, nil
	}
	look, err := t.lookup(id, archiveEnd)
	if err != nil {
		return nil, err
	}

	mr, err := newInodeReader(t.mm, t.em, t.kvStart, look.Ref, archiveEnd)
	if err != nil {
		return nil, err
	}

	out := make([]Xattr, 0, look.Count)
	for i := uint32(0); i < look.Count; i++ {
		x, err := t.readOne(mr, archiveEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (t *xattrIDTable) readOne(mr *metaReader, archiveEnd int64) (Xattr, error) {
	if err := mr.Advance(0, 4); err != nil {
		return Xattr{}, err
	}
	keyHdr := mr.Data()
	ktype := binary.LittleEndian.Uint16(keyHdr[0:2])
	nameSize := binary.LittleEndian.Uint16(keyHdr[2:4])

	if err := mr.Advance(0, int(nameSize)); err != nil {
		return Xattr{}, err
	}
	name := string(mr.Data())

	if err := mr.Advance(0, 4); err != nil {
		return Xattr{}, err
	}
	valSize := binary.LittleEndian.Uint32(mr.Data())

	indirect := ktype&xattrTypeIndirect != 0
	prefix := XattrPrefix(ktype & xattrTypeMask)

	if !indirect {
		if err := mr.Advance(0, int(valSize)); err != nil {
			return Xattr{}, err
		}
		val := make([]byte, valSize)
		copy(val, mr.Data())
		return Xattr{Prefix: prefix, Name: name, Value: val}, nil
	}

	// Indirect: the "value" bytes are an 8-byte inodeRef into the kv
	// region pointing at the real, de-duplicated value, itself framed as
	// a 4-byte size followed by that many bytes.
	if valSize != 8 {
		return Xattr{}, wrapErr(KindStructure, 0, ErrOutOfBounds)
	}
	if err := mr.Advance(0, 8); err != nil {
		return Xattr{}, err
	}
	ref := inodeRef(binary.LittleEndian.Uint64(mr.Data()))

	vr, err := newInodeReader(t.mm, t.em, t.kvStart, ref, archiveEnd)
	if err != nil {
		return Xattr{}, err
	}
	if err := vr.Advance(0, 4); err != nil {
		return Xattr{}, err
	}
	realSize := binary.LittleEndian.Uint32(vr.Data())
	if err := vr.Advance(0, int(realSize)); err != nil {
		return Xattr{}, err
	}
	val := make([]byte, realSize)
	copy(val, vr.Data())
	return Xattr{Prefix: prefix, Name: name, Value: val}, nil
}
