package squashfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildExtDirArchive assembles a minimal archive whose root is an extended
// directory inode carrying one directory index record, to exercise
// Inode.DirectoryIndex independently of the plain basic-directory path
// already covered by TestArchiveOpenAndWalk.
func buildExtDirArchive(t *testing.T) []byte {
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
	writeU32(&inodePayload, 3) // dir listing size (empty-directory minimum)
	writeU32(&inodePayload, 0) // dir table metablock start
	writeU32(&inodePayload, 1) // parent inode
	writeU16(&inodePayload, 1) // index_count
	writeU16(&inodePayload, 0) // offset within dir metablock
	writeU32(&inodePayload, invalidXattrIdx)

	indexName := "zzz"
	writeU32(&inodePayload, 123) // byte offset hint
	writeU32(&inodePayload, 7)   // metablock start hint
	writeU32(&inodePayload, uint32(len(indexName)-1))
	inodePayload.WriteString(indexName)

	// The directory table's contents are irrelevant here: DirectoryIndex
	// reads only the inode's own fixed fields, never the listing itself.
	dirBytes := []byte{}

	var archive bytes.Buffer
	archive.Write(make([]byte, superblockSize))

	inodeTableStart := int64(archive.Len())
	writeMetablock(&archive, inodePayload.Bytes())

	dirTableStart := int64(archive.Len())
	writeMetablock(&archive, dirBytes)

	buf := archive.Bytes()

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
	binary.LittleEndian.PutUint64(buf[56:64], uint64(invalidTableStart))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(inodeTableStart))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(dirTableStart))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(invalidTableStart))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(invalidTableStart))

	return buf
}

func TestInodeDirectoryIndex(t *testing.T) {
	buf := buildExtDirArchive(t)
	a, err := New(NewStaticMapper(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	root := a.Root()
	if root.Type != XDirType {
		t.Fatalf("root type = %v, want XDirType", root.Type)
	}

	it, err := root.DirectoryIndex()
	if err != nil {
		t.Fatalf("DirectoryIndex: %v", err)
	}

	rec, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec == nil {
		t.Fatal("expected one index record, got none")
	}
	if rec.Index != 123 || rec.Start != 7 || rec.Name != "zzz" {
		t.Fatalf("record = %+v, want {123 7 zzz}", rec)
	}

	rec, err = it.Next()
	if err != nil {
		t.Fatalf("Next (exhausted): %v", err)
	}
	if rec != nil {
		t.Fatalf("expected exhaustion, got %+v", rec)
	}
}

func TestInodeDirectoryIndexRejectsBasicDirectory(t *testing.T) {
	buf := buildTestArchive(t)
	a, err := New(NewStaticMapper(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.Root().DirectoryIndex(); err != ErrNoExtendedDirectory {
		t.Fatalf("got %v, want ErrNoExtendedDirectory", err)
	}
}
