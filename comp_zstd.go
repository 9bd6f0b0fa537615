package squashfs

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
	zstdDecErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	zstdDecOnce.Do(func() {
		zstdDec, zstdDecErr = zstd.NewReader(nil)
	})
	return zstdDec, zstdDecErr
}

func init() {
	RegisterExtractor(ZSTD, ExtractorFunc(func(dst, src []byte) ([]byte, error) {
		d, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		return d.DecodeAll(src, dst[:0])
	}))
}
