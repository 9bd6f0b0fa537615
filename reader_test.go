package squashfs

import (
	"bytes"
	"testing"
)

// fakeRunIterator slices a flat buffer into fixed-size runs, letting tests
// drive reader across run boundaries deterministically.
type fakeRunIterator struct {
	src      []byte
	runSize  int
	pos      int
	released int
}

func (it *fakeRunIterator) next(desiredSize int) error {
	if it.pos >= len(it.src) {
		return errEOF
	}
	end := it.pos + it.runSize
	if end > len(it.src) {
		end = len(it.src)
	}
	it.pos = end
	return nil
}

func (it *fakeRunIterator) data() []byte {
	start := it.pos - it.runSize
	if start < 0 {
		start = 0
	}
	end := it.pos
	if end > len(it.src) {
		end = len(it.src)
	}
	return it.src[start:end]
}

func (it *fakeRunIterator) release() { it.released++ }

func TestReaderZeroCopyWithinOneRun(t *testing.T) {
	buf := bytes.Repeat([]byte{0}, 32)
	for i := range buf {
		buf[i] = byte(i)
	}
	it := &fakeRunIterator{src: buf, runSize: 16}
	r := newReader(it)

	if err := r.Advance(4, 6); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := buf[4:10]
	if !bytes.Equal(r.Data(), want) {
		t.Fatalf("Data() = %v, want %v", r.Data(), want)
	}
}

func TestReaderStitchesAcrossRunBoundary(t *testing.T) {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = byte(i)
	}
	it := &fakeRunIterator{src: buf, runSize: 10}
	r := newReader(it)

	// Request 8 bytes starting at offset 6: spans run [0,10) and [10,20).
	if err := r.Advance(6, 8); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := buf[6:14]
	if !bytes.Equal(r.Data(), want) {
		t.Fatalf("Data() = %v, want %v", r.Data(), want)
	}
}

func TestReaderReentersZeroCopyAfterBuffer(t *testing.T) {
	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = byte(i)
	}
	it := &fakeRunIterator{src: buf, runSize: 10}
	r := newReader(it)

	// First, force a buffered stitch.
	if err := r.Advance(6, 8); err != nil {
		t.Fatalf("Advance#1: %v", err)
	}
	// Then advance further, fully inside the next run: should drop back to
	// zero-copy mode rather than re-using or extending the stale buffer.
	if err := r.Advance(0, 4); err != nil {
		t.Fatalf("Advance#2: %v", err)
	}
	want := buf[14:18]
	if !bytes.Equal(r.Data(), want) {
		t.Fatalf("Data() = %v, want %v", r.Data(), want)
	}
}

func TestReaderRetreatReusesBuffer(t *testing.T) {
	buf := make([]byte, 40)
	for i := range buf {
		buf[i] = byte(i)
	}
	it := &fakeRunIterator{src: buf, runSize: 10}
	r := newReader(it)

	if err := r.Advance(6, 8); err != nil {
		t.Fatalf("Advance#1: %v", err)
	}
	// Retreat into the already-buffered window; no new iterator call
	// should be necessary, and the data should match.
	if err := r.Advance(-4, 4); err != nil {
		t.Fatalf("Advance#2 (retreat): %v", err)
	}
	want := buf[10:14]
	if !bytes.Equal(r.Data(), want) {
		t.Fatalf("Data() = %v, want %v", r.Data(), want)
	}
}

func TestReaderOutOfBoundsTranslatesEOF(t *testing.T) {
	it := &fakeRunIterator{src: make([]byte, 8), runSize: 8}
	r := newReader(it)
	if err := r.Advance(0, 100); err != ErrOutOfBounds {
		t.Fatalf("Advance past end: got %v, want ErrOutOfBounds", err)
	}
}

func TestReaderCloseReleasesIterator(t *testing.T) {
	it := &fakeRunIterator{src: make([]byte, 8), runSize: 8}
	r := newReader(it)
	if err := r.Advance(0, 4); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	r.Close()
	if it.released == 0 {
		t.Fatalf("Close() did not release the iterator")
	}
}
