package squashfs

import (
	"encoding/binary"
	"errors"
	"testing"
)

func validSuperblockBytes() []byte {
	buf := make([]byte, superblockSize)
	binary.LittleEndian.PutUint32(buf[0:4], squashMagic)
	binary.LittleEndian.PutUint32(buf[4:8], 10)            // inode count
	binary.LittleEndian.PutUint32(buf[12:16], 1<<17)        // block size
	binary.LittleEndian.PutUint16(buf[20:22], uint16(GZip)) // compression
	binary.LittleEndian.PutUint16(buf[22:24], 17)           // block log
	binary.LittleEndian.PutUint16(buf[28:30], 4)            // version major
	binary.LittleEndian.PutUint16(buf[30:32], 0)            // version minor
	binary.LittleEndian.PutUint64(buf[80:88], invalidTableStart)
	binary.LittleEndian.PutUint64(buf[56:64], invalidTableStart)
	binary.LittleEndian.PutUint64(buf[88:96], invalidTableStart)
	return buf
}

func TestParseSuperblockValid(t *testing.T) {
	sb, err := parseSuperblock(validSuperblockBytes())
	if err != nil {
		t.Fatalf("parseSuperblock: %v", err)
	}
	if sb.CompressionID != GZip {
		t.Fatalf("CompressionID = %v, want GZip", sb.CompressionID)
	}
	if sb.HasFragmentTable() || sb.HasExportTable() || sb.HasXattrTable() {
		t.Fatalf("expected all optional tables absent")
	}
}

func TestParseSuperblockRejectsBadMagic(t *testing.T) {
	buf := validSuperblockBytes()
	binary.LittleEndian.PutUint32(buf[0:4], 0)
	_, err := parseSuperblock(buf)
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("got %v, want ErrInvalidFile", err)
	}
}

func TestParseSuperblockRejectsVersionMismatch(t *testing.T) {
	buf := validSuperblockBytes()
	binary.LittleEndian.PutUint16(buf[28:30], 3)
	_, err := parseSuperblock(buf)
	if !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("got %v, want ErrInvalidVersion", err)
	}
}

func TestParseSuperblockRejectsBlockSizeMismatch(t *testing.T) {
	buf := validSuperblockBytes()
	binary.LittleEndian.PutUint32(buf[12:16], 4096)
	binary.LittleEndian.PutUint16(buf[22:24], 11)
	_, err := parseSuperblock(buf)
	if !errors.Is(err, ErrBlockSizeMismatch) {
		t.Fatalf("got %v, want ErrBlockSizeMismatch", err)
	}
}

func TestParseSuperblockRejectsCheckFlag(t *testing.T) {
	buf := validSuperblockBytes()
	binary.LittleEndian.PutUint16(buf[24:26], uint16(CHECK))
	_, err := parseSuperblock(buf)
	if !errors.Is(err, ErrCheckFlagSet) {
		t.Fatalf("got %v, want ErrCheckFlagSet", err)
	}
}

func TestParseSuperblockRejectsUnknownCompression(t *testing.T) {
	buf := validSuperblockBytes()
	binary.LittleEndian.PutUint16(buf[20:22], 99)
	_, err := parseSuperblock(buf)
	if !errors.Is(err, ErrCompressionUnsupported) {
		t.Fatalf("got %v, want ErrCompressionUnsupported", err)
	}
}

func TestParseSuperblockRejectsTruncated(t *testing.T) {
	_, err := parseSuperblock(make([]byte, 10))
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("got %v, want ErrInvalidFile", err)
	}
}
