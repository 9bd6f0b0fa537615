package squashfs

import (
	"encoding/binary"
	"fmt"
)

const squashMagic = 0x73717368

const superblockSize = 96

// invalidTableStart marks an optional table as absent in the superblock
// (fragment_table_start, export_table_start, xattr_id_table_start).
const invalidTableStart = 0xffffffffffffffff

// Superblock is the fixed 96-byte header every archive opens with
// (spec.md §3.1, §4.H). Field names and layout follow the format
// definition exactly; byte order is always little-endian in SquashFS 4.0.
type Superblock struct {
	Magic               uint32
	InodeCount          uint32
	ModificationTime    uint32
	BlockSize           uint32
	FragmentEntryCount  uint32
	CompressionID       SquashComp
	BlockLog            uint16
	Flags               SquashFlags
	IDCount             uint16
	VersionMajor        uint16
	VersionMinor        uint16
	RootInodeRef        uint64
	BytesUsed           uint64
	IDTableStart        uint64
	XattrIDTableStart   uint64
	InodeTableStart     uint64
	DirectoryTableStart uint64
	FragmentTableStart  uint64
	ExportTableStart    uint64
}

// parseSuperblock decodes and validates the 96-byte header found at the
// start of buf. It rejects anything that isn't a little-endian SquashFS 4.0
// image with a supported layout, per spec.md §4.H's validation list.
func parseSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockSize {
		return nil, wrapErr(KindFormat, 0, ErrInvalidFile)
	}

	sb := &Superblock{
		Magic:               binary.LittleEndian.Uint32(buf[0:4]),
		InodeCount:          binary.LittleEndian.Uint32(buf[4:8]),
		ModificationTime:    binary.LittleEndian.Uint32(buf[8:12]),
		BlockSize:           binary.LittleEndian.Uint32(buf[12:16]),
		FragmentEntryCount:  binary.LittleEndian.Uint32(buf[16:20]),
		CompressionID:       SquashComp(binary.LittleEndian.Uint16(buf[20:22])),
		BlockLog:            binary.LittleEndian.Uint16(buf[22:24]),
		Flags:               SquashFlags(binary.LittleEndian.Uint16(buf[24:26])),
		IDCount:             binary.LittleEndian.Uint16(buf[26:28]),
		VersionMajor:        binary.LittleEndian.Uint16(buf[28:30]),
		VersionMinor:        binary.LittleEndian.Uint16(buf[30:32]),
		RootInodeRef:        binary.LittleEndian.Uint64(buf[32:40]),
		BytesUsed:           binary.LittleEndian.Uint64(buf[40:48]),
		IDTableStart:        binary.LittleEndian.Uint64(buf[48:56]),
		XattrIDTableStart:   binary.LittleEndian.Uint64(buf[56:64]),
		InodeTableStart:     binary.LittleEndian.Uint64(buf[64:72]),
		DirectoryTableStart: binary.LittleEndian.Uint64(buf[72:80]),
		FragmentTableStart:  binary.LittleEndian.Uint64(buf[80:88]),
		ExportTableStart:    binary.LittleEndian.Uint64(buf[88:96]),
	}

	if sb.Magic != squashMagic {
		return nil, wrapErr(KindFormat, 0, ErrInvalidFile)
	}
	if sb.VersionMajor != 4 || sb.VersionMinor != 0 {
		return nil, wrapErr(KindFormat, 28, ErrInvalidVersion)
	}
	if sb.BlockLog >= 32 || sb.BlockSize != 1<<sb.BlockLog {
		return nil, wrapErr(KindFormat, 12, ErrBlockSizeMismatch)
	}
	if sb.Flags.Has(CHECK) {
		return nil, wrapErr(KindFormat, 24, ErrCheckFlagSet)
	}
	if _, err := lookupExtractor(sb.CompressionID); err != nil {
		return nil, wrapErr(KindCompression, 20, fmt.Errorf("%w: %s", ErrCompressionUnsupported, sb.CompressionID))
	}

	return sb, nil
}

func (sb *Superblock) HasFragmentTable() bool { return sb.FragmentTableStart != invalidTableStart }
func (sb *Superblock) HasExportTable() bool   { return sb.ExportTableStart != invalidTableStart }
func (sb *Superblock) HasXattrTable() bool    { return sb.XattrIDTableStart != invalidTableStart }

// HasCompressionOptions reports whether a compressor-options metablock follows
// the superblock (spec.md §9 supplemented feature): set when the
// COMPRESSOR_OPTIONS flag is present, meaning callers decoding raw
// compression parameters (e.g. the XZ dictionary size, or gzip's window
// bits) must skip one metablock before the inode table's logical start.
func (sb *Superblock) HasCompressionOptions() bool {
	return sb.Flags.Has(COMPRESSOR_OPTIONS)
}

// CompressionOptions decodes the optional compressor-parameters metablock
// that immediately follows the superblock when HasCompressionOptions is
// true (spec.md §9 supplemented feature). The returned bytes are the
// decompressed metablock payload, whose layout is specific to
// sb.CompressionID (e.g. for XZ: dictionary_size uint32 followed by two
// filter-selection uint32s); callers that don't care about the exact tuning
// parameters can ignore the contents and just use this to skip past them.
func (a *Archive) CompressionOptions() ([]byte, error) {
	if !a.sb.HasCompressionOptions() {
		return nil, nil
	}
	it := newMetaBlockIterator(a.mm, a.em, superblockSize, a.archiveEnd())
	defer it.release()
	if err := it.next(metablockSize); err != nil {
		return nil, err
	}
	out := make([]byte, len(it.data()))
	copy(out, it.data())
	return out, nil
}

func (sb *Superblock) String() string {
	return fmt.Sprintf("SquashFS %d.%d, %d inodes, %s compression, block size %d",
		sb.VersionMajor, sb.VersionMinor, sb.InodeCount, sb.CompressionID, sb.BlockSize)
}
