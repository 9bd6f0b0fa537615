package squashfs

import (
	"bytes"
	"testing"
)

func TestStaticMapperRoundTrip(t *testing.T) {
	data := []byte("hello, squashfs world")
	m := NewStaticMapper(data)

	if m.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", m.Size(), len(data))
	}

	got, err := m.Map(7, 8)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !bytes.Equal(got, []byte("squashfs")) {
		t.Fatalf("Map(7,8) = %q, want %q", got, "squashfs")
	}

	if _, err := m.Map(int64(len(data))-2, 10); err != ErrOutOfBounds {
		t.Fatalf("Map past end: got %v, want ErrOutOfBounds", err)
	}
}

func TestWindowMapperReadsThroughReaderAt(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 4096)
	data[100] = 0x42
	m := NewWindowMapper(bytes.NewReader(data), int64(len(data)))

	got, err := m.Map(90, 20)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got[10] != 0x42 {
		t.Fatalf("Map(90,20)[10] = %#x, want 0x42", got[10])
	}
}

func TestOffsetMapperShiftsRequests(t *testing.T) {
	data := []byte("0123456789superblockhere")
	under := NewStaticMapper(data)
	om := newOffsetMapper(under, 10)

	if om.Size() != int64(len(data))-10 {
		t.Fatalf("Size() = %d, want %d", om.Size(), len(data)-10)
	}
	got, err := om.Map(0, 11)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if string(got) != "superblockh" {
		t.Fatalf("Map(0,11) = %q, want %q", got, "superblockh")
	}
}

func TestOffsetMapperZeroBaseIsIdentity(t *testing.T) {
	under := NewStaticMapper([]byte("abc"))
	if newOffsetMapper(under, 0) != under {
		t.Fatalf("zero-offset wrapper should return the underlying mapper unchanged")
	}
}
