package squashfs

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

func init() {
	RegisterExtractor(LZ4, streamExtractor(func(r io.Reader) (io.Reader, error) {
		return lz4.NewReader(r), nil
	}))
}
