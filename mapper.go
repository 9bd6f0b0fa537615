package squashfs

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Mapper is the abstract byte source backing a Map Manager (spec.md §6.1,
// §4.A). Concrete implementations turn a (offset, size) request into a byte
// slice however is cheapest for that source: a sub-slice of memory already
// resident, a window onto an mmap'd region, or a freshly-read buffer.
type Mapper interface {
	// Size returns the total addressable length of the source.
	Size() int64
	// Map returns size bytes starting at offset. -OutOfBounds (ErrOutOfBounds)
	// if offset+size exceeds Size().
	Map(offset int64, size int) ([]byte, error)
	// Release gives back a slice obtained from Map. Implementations that
	// hand out independent copies may treat this as a no-op.
	Release(b []byte)
	// Close tears down the mapper (unmaps memory, closes file descriptors).
	Close() error
}

// staticMapper is a Mapper over a caller-owned in-memory region. Map is
// always zero-copy; Release and Close are no-ops.
type staticMapper struct {
	data []byte
}

// NewStaticMapper wraps data (e.g. an already-loaded archive image, or a
// []byte obtained by the caller from anywhere) as a Mapper. No copy is made;
// the caller must keep data alive for as long as the Mapper is in use.
func NewStaticMapper(data []byte) Mapper {
	return &staticMapper{data: data}
}

func (m *staticMapper) Size() int64 { return int64(len(m.data)) }

func (m *staticMapper) Map(offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+int64(size) > int64(len(m.data)) {
		return nil, ErrOutOfBounds
	}
	return m.data[offset : offset+int64(size)], nil
}

func (m *staticMapper) Release([]byte) {}
func (m *staticMapper) Close() error   { return nil }

// fileMapper maps the whole backing file into memory once via mmap and
// slices the mapping per request; this is the common case for on-disk
// archives and avoids a syscall per block.
type fileMapper struct {
	f    *os.File
	data []byte
	mu   sync.Mutex
}

// NewFileMapper mmaps the entirety of f read-only and returns a Mapper over
// it. f is retained and closed by Close.
func NewFileMapper(f *os.File) (Mapper, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return &fileMapper{f: f, data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Kind: KindEnvironment, Err: err}
	}
	return &fileMapper{f: f, data: data}, nil
}

func (m *fileMapper) Size() int64 { return int64(len(m.data)) }

func (m *fileMapper) Map(offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+int64(size) > int64(len(m.data)) {
		return nil, ErrOutOfBounds
	}
	return m.data[offset : offset+int64(size)], nil
}

func (m *fileMapper) Release([]byte) {}

func (m *fileMapper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return m.f.Close()
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// windowMapper reads through an arbitrary io.ReaderAt (network range
// fetches, an in-memory reader that isn't a flat []byte, a pipe-backed
// source) one block at a time, allocating a fresh buffer per Map call since
// it has no resident memory to slice into. This is the Go analog of the
// format's range-mmap and curl mappers (spec.md §6.1): any ReaderAt plays
// that role here, not just HTTP.
type windowMapper struct {
	r    io.ReaderAt
	size int64
}

// NewWindowMapper wraps r (of total length size) as a Mapper. Every Map call
// issues a ReadAt and returns an owned buffer.
func NewWindowMapper(r io.ReaderAt, size int64) Mapper {
	return &windowMapper{r: r, size: size}
}

func (m *windowMapper) Size() int64 { return m.size }

func (m *windowMapper) Map(offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+int64(size) > m.size {
		return nil, ErrOutOfBounds
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(m.r, offset, int64(size)), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *windowMapper) Release([]byte) {}
func (m *windowMapper) Close() error   { return nil }

// offsetMapper shifts every request by a fixed base, so that offset 0 in the
// rest of the package always means "the first byte of the superblock" even
// when the archive is embedded after a bootloader or other prefix (spec.md
// §6.2's archive-offset option).
type offsetMapper struct {
	under Mapper
	base  int64
}

func newOffsetMapper(under Mapper, base int64) Mapper {
	if base == 0 {
		return under
	}
	return &offsetMapper{under: under, base: base}
}

func (m *offsetMapper) Size() int64 { return m.under.Size() - m.base }

func (m *offsetMapper) Map(offset int64, size int) ([]byte, error) {
	return m.under.Map(m.base+offset, size)
}

func (m *offsetMapper) Release(b []byte) { m.under.Release(b) }
func (m *offsetMapper) Close() error     { return m.under.Close() }
