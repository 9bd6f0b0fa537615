package squashfs

import (
	"errors"
	"fmt"
)

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidFile is returned when the file format is not recognized as SquashFS
	ErrInvalidFile = errors.New("invalid file, squashfs signature not found")

	// ErrInvalidSuper is returned when the superblock data is corrupted or invalid
	ErrInvalidSuper = errors.New("invalid squashfs superblock")

	// ErrInvalidVersion is returned when the SquashFS version is not 4.0
	// This library only supports SquashFS 4.0 format
	ErrInvalidVersion = errors.New("invalid file version, expected squashfs 4.0")

	// ErrCheckFlagSet is returned when the superblock CHECK flag is set; this
	// historical fsck marker is not supported by the read path.
	ErrCheckFlagSet = errors.New("squashfs: CHECK flag set, unsupported")

	// ErrBlockSizeMismatch is returned when block_size != 1<<block_log
	ErrBlockSizeMismatch = errors.New("squashfs: block size does not match block log")

	// ErrMetablockTooBig is returned when a metablock header declares a
	// compressed payload bigger than 8192 bytes.
	ErrMetablockTooBig = errors.New("squashfs: metablock compressed size exceeds 8192 bytes")

	// ErrUnknownInodeType is returned when an inode header names a type
	// outside of 1..14.
	ErrUnknownInodeType = errors.New("squashfs: unknown inode type")

	// ErrInodeNotExported is returned when trying to access an inode that isn't in the export table
	ErrInodeNotExported = errors.New("unknown squashfs inode and no NFS export table")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotAFile is returned when a data-reading operation targets a non-regular-file inode.
	ErrNotAFile = errors.New("squashfs: not a regular file")

	// ErrNoExtendedDirectory is returned when a directory-index lookup is
	// attempted against a basic (non-extended) directory inode.
	ErrNoExtendedDirectory = errors.New("squashfs: inode is not an extended directory")

	// ErrNoFragmentTable and ErrNoXattrTable are returned when the
	// corresponding optional table is absent from the archive. ErrNoExportTable
	// names the same condition for the export table; GetInode reports a
	// missing export table as ErrInodeNotExported instead.
	ErrNoFragmentTable = errors.New("squashfs: archive has no fragment table")
	ErrNoExportTable   = errors.New("squashfs: archive has no export table")
	ErrNoXattrTable    = errors.New("squashfs: archive has no xattr table")

	// ErrOutOfBounds is returned when an offset/size pair falls outside the
	// mapped source, or a table index falls outside the table's element count.
	ErrOutOfBounds = errors.New("squashfs: access out of bounds")

	// ErrTooManySymlinks is returned when symlink resolution exceeds the maximum depth
	// This prevents infinite loops in symlink resolution
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrTooDeep is returned by the tree traversal when the configured max
	// depth is exceeded.
	ErrTooDeep = errors.New("squashfs: tree traversal exceeded maximum depth")

	// ErrInodeMapInconsistent is returned when two different inode
	// references are published for the same inode number.
	ErrInodeMapInconsistent = errors.New("squashfs: inode reference map inconsistency")

	// ErrCompressionUnsupported is returned when the superblock names a
	// compression id for which no codec is registered.
	ErrCompressionUnsupported = errors.New("squashfs: unsupported compression algorithm")

	// ErrDecompressorFinished names the double-finish compression error. The
	// one-shot Extractor interface has no separate finish step, so no code
	// path in this package returns it.
	ErrDecompressorFinished = errors.New("squashfs: decompressor already finished")

	// ErrSkipDir, returned by a Visitor on EventEnter, skips that
	// directory's contents without aborting the walk.
	ErrSkipDir = errors.New("squashfs: skip directory")
)

// errEOF is the internal sentinel a blockIterator returns from next() when
// its underlying run sequence is exhausted. It never escapes to a caller:
// reader.Advance translates it into ErrOutOfBounds, since every legitimate
// caller already knows the length of the region it is reading.
var errEOF = errors.New("squashfs: block iterator exhausted")

// Kind classifies an error into one of the groups from the format's error
// taxonomy: Format, Compression, Structure, Environment. Codes below 256 are
// reserved for passthrough of OS errno values and are never assigned a Kind
// by this package: Kind values start at 256.
type Kind int

const (
	KindFormat Kind = iota + 256
	KindCompression
	KindStructure
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindCompression:
		return "compression"
	case KindStructure:
		return "structure"
	case KindEnvironment:
		return "environment"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error wraps a sentinel with its taxonomy Kind and, where relevant, the
// archive offset the failure was detected at. Use errors.Is against the
// package sentinels, or errors.As against *Error to inspect Kind/Offset.
type Error struct {
	Kind   Kind
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	if e.Offset != 0 {
		return fmt.Sprintf("squashfs: %s error at offset %d: %s", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("squashfs: %s error: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(kind Kind, offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Offset: offset, Err: err}
}
