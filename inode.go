package squashfs

import "io/fs"

const invalidFragIndex = 0xffffffff
const invalidXattrIdx = 0xffffffff

// blockSizeUncompressedBit marks one data/fragment block as stored verbatim;
// the remaining bits are its on-disk size (spec.md §3.5).
const blockSizeUncompressedBit = 0x01000000

type blockSize uint32

func (b blockSize) Compressed() bool { return b&blockSizeUncompressedBit == 0 }
func (b blockSize) Size() uint32     { return uint32(b) &^ blockSizeUncompressedBit }

// Inode is the decoded form of one of the fourteen on-disk inode variants
// (spec.md §3.4, §4.J). Every variant shares the six-field header; the rest
// of the fields are populated according to Type, with meaningless fields
// left at their zero value for a given type.
type Inode struct {
	arc *Archive
	ref inodeRef

	Type    Type
	Perm    uint16
	UidIdx  uint16
	GidIdx  uint16
	ModTime uint32
	Number  uint32

	NLink    uint32
	XattrIdx uint32

	// directory (basic + extended)
	StartBlock  uint64
	FileSize    uint64 // directory size (listing byte length) or file size
	Offset      uint32
	ParentInode uint32
	IndexCount  uint16

	// regular file (basic + extended)
	BlocksStart    uint64
	FragBlockIndex uint32
	BlockOffset    uint32
	Sparse         uint64
	BlockSizes     []blockSize

	// symlink
	TargetPath []byte

	// device / fifo / socket
	DeviceNumber uint32
}

func (ino *Inode) IsDir() bool     { return ino.Type.IsDir() }
func (ino *Inode) IsRegular() bool { return ino.Type.IsRegular() }
func (ino *Inode) IsSymlink() bool { return ino.Type.IsSymlink() }

func (ino *Inode) HasFragment() bool { return ino.FragBlockIndex != invalidFragIndex }
func (ino *Inode) HasXattr() bool    { return ino.XattrIdx != invalidXattrIdx }

func (ino *Inode) Mode() fs.FileMode {
	return ino.Type.Mode() | UnixToMode(uint32(ino.Perm))
}

// decodeInode reads one inode record starting at ref, which must already be
// positioned (via newInodeReader) at the inode's 16-byte common header.
func decodeInode(sb *Superblock, mr *metaReader) (*Inode, error) {
	typ, err := mr.u16()
	if err != nil {
		return nil, err
	}
	perm, err := mr.u16()
	if err != nil {
		return nil, err
	}
	uidIdx, err := mr.u16()
	if err != nil {
		return nil, err
	}
	gidIdx, err := mr.u16()
	if err != nil {
		return nil, err
	}
	modTime, err := mr.u32()
	if err != nil {
		return nil, err
	}
	number, err := mr.u32()
	if err != nil {
		return nil, err
	}

	ino := &Inode{
		Type:    Type(typ),
		Perm:    perm,
		UidIdx:  uidIdx,
		GidIdx:  gidIdx,
		ModTime: modTime,
		Number:  number,
	}

	switch ino.Type {
	case DirType:
		if err := decodeBasicDir(ino, mr); err != nil {
			return nil, err
		}
	case XDirType:
		if err := decodeExtDir(ino, mr); err != nil {
			return nil, err
		}
	case FileType:
		if err := decodeBasicFile(ino, sb, mr); err != nil {
			return nil, err
		}
	case XFileType:
		if err := decodeExtFile(ino, sb, mr); err != nil {
			return nil, err
		}
	case SymlinkType:
		if err := decodeSymlink(ino, mr, false); err != nil {
			return nil, err
		}
	case XSymlinkType:
		if err := decodeSymlink(ino, mr, true); err != nil {
			return nil, err
		}
	case BlockDevType, CharDevType:
		if err := decodeDevice(ino, mr, false); err != nil {
			return nil, err
		}
	case XBlockDevType, XCharDevType:
		if err := decodeDevice(ino, mr, true); err != nil {
			return nil, err
		}
	case FifoType, SocketType:
		if err := decodeIPC(ino, mr, false); err != nil {
			return nil, err
		}
	case XFifoType, XSocketType:
		if err := decodeIPC(ino, mr, true); err != nil {
			return nil, err
		}
	default:
		return nil, wrapErr(KindFormat, 0, ErrUnknownInodeType)
	}

	return ino, nil
}

func decodeBasicDir(ino *Inode, mr *metaReader) error {
	startBlock, err := mr.u32()
	if err != nil {
		return err
	}
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	fileSize, err := mr.u16()
	if err != nil {
		return err
	}
	offset, err := mr.u16()
	if err != nil {
		return err
	}
	parent, err := mr.u32()
	if err != nil {
		return err
	}
	ino.StartBlock = uint64(startBlock)
	ino.NLink = nlink
	ino.FileSize = uint64(fileSize)
	ino.Offset = uint32(offset)
	ino.ParentInode = parent
	ino.XattrIdx = invalidXattrIdx
	return nil
}

func decodeExtDir(ino *Inode, mr *metaReader) error {
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	fileSize, err := mr.u32()
	if err != nil {
		return err
	}
	startBlock, err := mr.u32()
	if err != nil {
		return err
	}
	parent, err := mr.u32()
	if err != nil {
		return err
	}
	idxCount, err := mr.u16()
	if err != nil {
		return err
	}
	offset, err := mr.u16()
	if err != nil {
		return err
	}
	xattrIdx, err := mr.u32()
	if err != nil {
		return err
	}
	ino.NLink = nlink
	ino.FileSize = uint64(fileSize)
	ino.StartBlock = uint64(startBlock)
	ino.ParentInode = parent
	ino.IndexCount = idxCount
	ino.Offset = uint32(offset)
	ino.XattrIdx = xattrIdx
	return nil
}

func blockCount(fileSize uint64, blockSz uint32, hasFragment bool) int {
	n := fileSize / uint64(blockSz)
	if fileSize%uint64(blockSz) != 0 && !hasFragment {
		n++
	}
	return int(n)
}

func readBlockSizes(ino *Inode, mr *metaReader, blockSz uint32) error {
	n := blockCount(ino.FileSize, blockSz, ino.HasFragment())
	ino.BlockSizes = make([]blockSize, n)
	for i := 0; i < n; i++ {
		v, err := mr.u32()
		if err != nil {
			return err
		}
		ino.BlockSizes[i] = blockSize(v)
	}
	return nil
}

func decodeBasicFile(ino *Inode, sb *Superblock, mr *metaReader) error {
	blocksStart, err := mr.u32()
	if err != nil {
		return err
	}
	fragIdx, err := mr.u32()
	if err != nil {
		return err
	}
	blockOffset, err := mr.u32()
	if err != nil {
		return err
	}
	fileSize, err := mr.u32()
	if err != nil {
		return err
	}
	ino.BlocksStart = uint64(blocksStart)
	ino.FragBlockIndex = fragIdx
	ino.BlockOffset = blockOffset
	ino.FileSize = uint64(fileSize)
	ino.NLink = 1
	ino.XattrIdx = invalidXattrIdx
	return readBlockSizes(ino, mr, sb.BlockSize)
}

func decodeExtFile(ino *Inode, sb *Superblock, mr *metaReader) error {
	blocksStart, err := mr.u64()
	if err != nil {
		return err
	}
	fileSize, err := mr.u64()
	if err != nil {
		return err
	}
	sparse, err := mr.u64()
	if err != nil {
		return err
	}
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	fragIdx, err := mr.u32()
	if err != nil {
		return err
	}
	blockOffset, err := mr.u32()
	if err != nil {
		return err
	}
	xattrIdx, err := mr.u32()
	if err != nil {
		return err
	}
	ino.BlocksStart = blocksStart
	ino.FileSize = fileSize
	ino.Sparse = sparse
	ino.NLink = nlink
	ino.FragBlockIndex = fragIdx
	ino.BlockOffset = blockOffset
	ino.XattrIdx = xattrIdx
	return readBlockSizes(ino, mr, sb.BlockSize)
}

func decodeSymlink(ino *Inode, mr *metaReader, extended bool) error {
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	targetSize, err := mr.u32()
	if err != nil {
		return err
	}
	target, err := mr.bytes(int(targetSize))
	if err != nil {
		return err
	}
	ino.NLink = nlink
	ino.TargetPath = target
	ino.XattrIdx = invalidXattrIdx
	if extended {
		// The extended symlink's xattr index trails the target path
		// rather than sitting in a fixed-offset header field; this is a
		// format quirk (spec.md §9 open question) preserved as-is.
		xattrIdx, err := mr.u32()
		if err != nil {
			return err
		}
		ino.XattrIdx = xattrIdx
	}
	return nil
}

func decodeDevice(ino *Inode, mr *metaReader, extended bool) error {
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	dev, err := mr.u32()
	if err != nil {
		return err
	}
	ino.NLink = nlink
	ino.DeviceNumber = dev
	ino.XattrIdx = invalidXattrIdx
	if extended {
		xattrIdx, err := mr.u32()
		if err != nil {
			return err
		}
		ino.XattrIdx = xattrIdx
	}
	return nil
}

func decodeIPC(ino *Inode, mr *metaReader, extended bool) error {
	nlink, err := mr.u32()
	if err != nil {
		return err
	}
	ino.NLink = nlink
	ino.XattrIdx = invalidXattrIdx
	if extended {
		xattrIdx, err := mr.u32()
		if err != nil {
			return err
		}
		ino.XattrIdx = xattrIdx
	}
	return nil
}
