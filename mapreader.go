package squashfs

// mapReader is the Map Reader of spec.md §4.F: a generic reader over raw,
// uncompressed archive bytes, used for the lookup tables' metablock-pointer
// arrays, the xattr id-table header, file data and fragment blocks, and the
// metablock headers and payloads the Metablock Iterator reads, i.e. wherever
// the image stores bytes directly rather than behind metablock framing.
type mapReader struct {
	*reader
	it *mapBlockIterator
}

// newMapReader returns a mapReader positioned to read from [base, limit) of
// the archive, pulling blocks through mm as needed.
func newMapReader(mm *mapManager, base, limit int64) *mapReader {
	it := newMapBlockIterator(mm, base, limit)
	return &mapReader{reader: newReader(it), it: it}
}
