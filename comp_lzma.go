package squashfs

import (
	"io"

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterExtractor(LZMA, streamExtractor(func(r io.Reader) (io.Reader, error) {
		return lzma.NewReader(r)
	}))
}
