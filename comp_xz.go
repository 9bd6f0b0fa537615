package squashfs

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	RegisterExtractor(XZ, streamExtractor(func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	}))
}
