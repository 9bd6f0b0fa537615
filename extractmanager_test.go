package squashfs

import (
	"bytes"
	"sync"
	"testing"
)

// countingExtractor decompresses by upper-casing its input (a stand-in
// transform, not a real codec) and counts how many times it actually runs.
type countingExtractor struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExtractor) Decompress(dst, src []byte) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := append(dst[:0], src...)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - 32
		}
	}
	return out, nil
}

func newTestExtractManager(t *testing.T, lruCap int) (*extractManager, *countingExtractor) {
	t.Helper()
	ext := &countingExtractor{}
	RegisterExtractor(SquashComp(0xfffe), ext)
	em, err := newExtractManager(SquashComp(0xfffe), lruCap)
	if err != nil {
		t.Fatalf("newExtractManager: %v", err)
	}
	return em, ext
}

func TestExtractManagerDedupsByAddress(t *testing.T) {
	em, ext := newTestExtractManager(t, 4)

	out1, err := em.uncompress(100, []byte("hello"), 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out1, []byte("HELLO")) {
		t.Fatalf("got %q", out1)
	}

	out2, err := em.uncompress(100, []byte("hello"), 16)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out2, []byte("HELLO")) {
		t.Fatalf("got %q", out2)
	}
	if ext.calls != 1 {
		t.Fatalf("calls = %d, want 1 (second request should hit cache)", ext.calls)
	}

	em.release(100)
	em.release(100)
}

func TestExtractManagerDistinctAddressesDecompressIndependently(t *testing.T) {
	em, ext := newTestExtractManager(t, 4)

	if _, err := em.uncompress(0, []byte("a"), 4); err != nil {
		t.Fatal(err)
	}
	if _, err := em.uncompress(8, []byte("b"), 4); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 2 {
		t.Fatalf("calls = %d, want 2", ext.calls)
	}
}

func TestExtractManagerUnknownCompressionErrors(t *testing.T) {
	if _, err := newExtractManager(SquashComp(0xdead), 0); err == nil {
		t.Fatal("expected error for unregistered compression id")
	}
}
