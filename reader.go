package squashfs

// blockIterator is implemented by any source of contiguous byte runs: the
// Map Manager's block sequence, or the Metablock Iterator's decompressed
// metablock sequence. It is the classic "pull iterator with external state"
// spec.md §9 calls for — no generators, no coroutines. Runs produced by
// successive next() calls are assumed contiguous in the iterator's logical
// stream (no gaps), which is what lets reader stitch across them.
type blockIterator interface {
	// next advances to the following run. desiredSize is a hint some
	// iterators use to decide how much to pull in one step; it never
	// changes correctness, only how many next() calls a given Advance
	// needs.
	next(desiredSize int) error
	data() []byte
	// release frees any resources (refcounted cache entries) held for the
	// run last returned by data(). Safe to call when nothing is held.
	release()
}

// reader is the generic "virtual cursor" of spec.md §4.E: advance/peek a
// contiguous slice, transparently switching between a zero-copy view into
// the iterator's current run and a buffered stitch when a request crosses a
// run boundary. Every table, directory, and file-size-array access in this
// module goes through one of these (via mapReader or metaReader) instead of
// hand-rolling its own boundary-crossing logic.
type reader struct {
	it blockIterator

	haveRun  bool
	runStart int64
	runData  []byte

	bufValid bool
	bufStart int64
	buf      []byte

	cursor  int64
	exposed []byte
}

func newReader(it blockIterator) *reader {
	return &reader{it: it}
}

// Data returns the slice last exposed by Advance. Valid only until the next
// call to Advance or Close.
func (r *reader) Data() []byte { return r.exposed }

// Pos returns the cursor's current logical position in the stream.
func (r *reader) Pos() int64 { return r.cursor }

func (r *reader) ensureRun(desiredSize int) error {
	if r.haveRun {
		return nil
	}
	if err := r.it.next(desiredSize); err != nil {
		return translateIterErr(err)
	}
	r.runStart = 0
	r.runData = r.it.data()
	r.haveRun = true
	return nil
}

// translateIterErr turns the internal errEOF sentinel into the public
// ErrOutOfBounds; every other error (decompression, I/O) passes through.
func translateIterErr(err error) error {
	if err == errEOF {
		return ErrOutOfBounds
	}
	return err
}

// Advance moves the cursor forward by offset bytes from its current
// position and exposes the following size bytes. See spec.md §4.E for the
// zero-copy / buffered-stitch contract.
func (r *reader) Advance(offset, size int) error {
	target := r.cursor + int64(offset)
	end := target + int64(size)
	r.cursor = end

	// Retreat into, or stay within, the already-buffered window.
	if r.bufValid && target >= r.bufStart && end <= r.bufStart+int64(len(r.buf)) {
		lo := target - r.bufStart
		r.exposed = r.buf[lo : lo+int64(size)]
		return nil
	}

	if err := r.ensureRun(size); err != nil {
		return err
	}

	// Skip whole runs until target lands inside (or exactly at the end of)
	// the current run.
	for target >= r.runStart+int64(len(r.runData)) {
		prevEnd := r.runStart + int64(len(r.runData))
		if err := r.it.next(size); err != nil {
			return translateIterErr(err)
		}
		r.runStart = prevEnd
		r.runData = r.it.data()
	}

	if end <= r.runStart+int64(len(r.runData)) {
		// Zero-copy: the whole request lies inside one run.
		lo := target - r.runStart
		r.exposed = r.runData[lo : lo+int64(size)]
		r.bufValid = false
		return nil
	}

	// Buffered stitch: accumulate from the tail of the current run across
	// as many further runs as needed.
	buf := make([]byte, 0, size)
	lo := target - r.runStart
	buf = append(buf, r.runData[lo:]...)
	for int64(len(buf)) < int64(size) {
		prevEnd := r.runStart + int64(len(r.runData))
		if err := r.it.next(size - len(buf)); err != nil {
			return translateIterErr(err)
		}
		r.runStart = prevEnd
		r.runData = r.it.data()
		need := int64(size) - int64(len(buf))
		take := int64(len(r.runData))
		if take > need {
			take = need
		}
		buf = append(buf, r.runData[:take]...)
	}

	r.buf = buf
	r.bufStart = target
	r.bufValid = true
	r.exposed = buf
	return nil
}

// Close releases any resources held by the underlying iterator.
func (r *reader) Close() {
	r.it.release()
}
