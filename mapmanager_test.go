package squashfs

import (
	"bytes"
	"testing"
)

func TestMapManagerGetReleaseRoundTrip(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	mm := newMapManager(NewStaticMapper(data), 16, 4)
	defer mm.Close()

	got, err := mm.Get(2)
	if err != nil {
		t.Fatalf("Get(2): %v", err)
	}
	if !bytes.Equal(got, data[32:48]) {
		t.Fatalf("Get(2) = %v, want %v", got, data[32:48])
	}
	mm.Release(2)

	// Last block is short (100 - 6*16 = 4 bytes).
	got, err = mm.Get(6)
	if err != nil {
		t.Fatalf("Get(6): %v", err)
	}
	if !bytes.Equal(got, data[96:100]) {
		t.Fatalf("Get(6) = %v, want %v", got, data[96:100])
	}
}

func TestMapManagerOutOfBounds(t *testing.T) {
	mm := newMapManager(NewStaticMapper(make([]byte, 16)), 16, 4)
	defer mm.Close()
	if _, err := mm.Get(1); err != ErrOutOfBounds {
		t.Fatalf("Get(1) = %v, want ErrOutOfBounds", err)
	}
}

func TestMapManagerReusesCachedBlockWhileRefHeld(t *testing.T) {
	data := make([]byte, 32)
	mapper := &countingMapper{Mapper: NewStaticMapper(data)}
	mm := newMapManager(mapper, 16, 4)
	defer mm.Close()

	if _, err := mm.Get(0); err != nil {
		t.Fatal(err)
	}
	if _, err := mm.Get(0); err != nil {
		t.Fatal(err)
	}
	if mapper.mapCalls != 1 {
		t.Fatalf("mapCalls = %d, want 1 (second Get should hit cache)", mapper.mapCalls)
	}
	mm.Release(0)
	mm.Release(0)
}

// countingMapper wraps a Mapper and counts Map calls, to assert caching
// behavior without depending on internal fields.
type countingMapper struct {
	Mapper
	mapCalls int
}

func (m *countingMapper) Map(offset int64, size int) ([]byte, error) {
	m.mapCalls++
	return m.Mapper.Map(offset, size)
}
