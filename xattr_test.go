package squashfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildXattrArchive assembles a minimal archive whose root inode (an
// extended directory, one of the extended variants that carry an xattr_idx) has
// one direct (non-indirect) xattr attached, exercising the full
// id-table -> lookup-table -> kv-region chain of component L.
func buildXattrArchive(t *testing.T) []byte {
	t.Helper()
	const testBlockSize = 4096
	const testBlockLog = 12

	var inodePayload bytes.Buffer
	rootInodeOfft := inodePayload.Len()
	writeU16(&inodePayload, uint16(XDirType))
	writeU16(&inodePayload, 0755)
	writeU16(&inodePayload, 0)
	writeU16(&inodePayload, 0)
	writeU32(&inodePayload, 0)
	writeU32(&inodePayload, 1) // inode number
	writeU32(&inodePayload, 2) // nlink
	writeU32(&inodePayload, 3) // dir listing size (empty)
	writeU32(&inodePayload, 0) // dir table metablock start
	writeU32(&inodePayload, 1) // parent inode
	writeU16(&inodePayload, 0) // index_count
	writeU16(&inodePayload, 0) // offset within dir metablock
	writeU32(&inodePayload, 0) // xattr_idx: first (only) lookup entry

	var archive bytes.Buffer
	archive.Write(make([]byte, superblockSize))

	inodeTableStart := int64(archive.Len())
	writeMetablock(&archive, inodePayload.Bytes())

	dirTableStart := int64(archive.Len())
	writeMetablock(&archive, []byte{})

	xattrIDTableStart := int64(archive.Len())
	archive.Write(make([]byte, 16)) // header: kvStart(8) + count(4) + unused(4), patched below

	ptrArrayStart := int64(archive.Len())
	archive.Write(make([]byte, 8)) // one metablock-start pointer, patched below

	lookupMetablockStart := int64(archive.Len())
	var lookupPayload bytes.Buffer
	writeU64(&lookupPayload, 0) // ref: metablock start 0, inner offset 0 (the kv metablock sits at kvStart)
	writeU32(&lookupPayload, 1) // count
	writeU32(&lookupPayload, 0) // size (unused by List)
	writeMetablock(&archive, lookupPayload.Bytes())

	kvMetablockStart := int64(archive.Len())
	var kvPayload bytes.Buffer
	name := "foo"
	value := []byte("bar12")
	writeU16(&kvPayload, uint16(XattrUser)) // ktype, not indirect
	writeU16(&kvPayload, uint16(len(name)))
	kvPayload.WriteString(name)
	writeU32(&kvPayload, uint32(len(value)))
	kvPayload.Write(value)
	writeMetablock(&archive, kvPayload.Bytes())

	buf := archive.Bytes()

	// Patch the xattr id table header: kvStart = kvMetablockStart.
	binary.LittleEndian.PutUint64(buf[xattrIDTableStart:], uint64(kvMetablockStart))
	binary.LittleEndian.PutUint32(buf[xattrIDTableStart+8:], 1) // count

	// Patch the pointer array: one metablock-start pointer.
	binary.LittleEndian.PutUint64(buf[ptrArrayStart:], uint64(lookupMetablockStart))

	binary.LittleEndian.PutUint32(buf[0:4], squashMagic)
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint32(buf[12:16], testBlockSize)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(GZip))
	binary.LittleEndian.PutUint16(buf[22:24], testBlockLog)
	binary.LittleEndian.PutUint16(buf[28:30], 4)
	binary.LittleEndian.PutUint16(buf[30:32], 0)
	rootRef := uint64(0)<<16 | uint64(rootInodeOfft)
	binary.LittleEndian.PutUint64(buf[32:40], rootRef)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(len(buf)))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(invalidTableStart))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(xattrIDTableStart))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(inodeTableStart))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(dirTableStart))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(invalidTableStart))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(invalidTableStart))

	return buf
}

func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func TestArchiveXattrsDirectValue(t *testing.T) {
	buf := buildXattrArchive(t)
	a, err := New(NewStaticMapper(buf))
	require.NoError(t, err)
	defer a.Close()

	require.True(t, a.Superblock().HasXattrTable())

	root := a.Root()
	require.True(t, root.HasXattr())

	xs, err := a.Xattrs(root)
	require.NoError(t, err)
	require.Len(t, xs, 1)
	require.Equal(t, "user.foo", xs[0].FullName())
	require.Equal(t, []byte("bar12"), xs[0].Value)
}

func TestArchiveXattrsNoneWhenUnset(t *testing.T) {
	buf := buildTestArchive(t)
	a, err := New(NewStaticMapper(buf))
	require.NoError(t, err)
	defer a.Close()

	require.False(t, a.Superblock().HasXattrTable())

	xs, err := a.Xattrs(a.Root())
	require.NoError(t, err)
	require.Nil(t, xs)
}
