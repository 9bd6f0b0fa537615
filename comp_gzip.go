package squashfs

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

func init() {
	RegisterExtractor(GZip, streamExtractor(func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	}))
}
