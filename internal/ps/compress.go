package ps

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressThreshold is the payload-size floor below which compression
// is skipped even when a rule requests it (SPEC_FULL.md §4.9): small
// bodies don't recoup the zstd frame overhead.
const CompressThreshold = 4096

// compressor lazily builds package-level zstd encoder/decoder pairs;
// both are safe for concurrent use once constructed.
var (
	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
)

func getEncoder() (*zstd.Encoder, error) {
	encOnce.Do(func() { enc, encErr = zstd.NewWriter(nil) })
	return enc, encErr
}

func getDecoder() (*zstd.Decoder, error) {
	decOnce.Do(func() { dec, decErr = zstd.NewReader(nil) })
	return dec, decErr
}

// CompressPayload compresses payload with zstd when it is at least
// CompressThreshold bytes. The engine passes the whole encoded element
// stream (status-line and header elements included) through it; META's
// header_len is written as 0.
func CompressPayload(payload []byte) (out []byte, compressed bool, err error) {
	if len(payload) < CompressThreshold {
		return payload, false, nil
	}
	e, err := getEncoder()
	if err != nil {
		return nil, false, fmt.Errorf("ps: zstd encoder: %w", err)
	}
	return e.EncodeAll(payload, make([]byte, 0, len(payload))), true, nil
}

// DecompressPayload reverses CompressPayload. It returns an error for
// input that is not a zstd frame; the engine's reader calls it whenever
// the rule has compression on and keeps the raw payload on error, since
// payloads under CompressThreshold are stored uncompressed.
func DecompressPayload(compressed []byte) ([]byte, error) {
	d, err := getDecoder()
	if err != nil {
		return nil, fmt.Errorf("ps: zstd decoder: %w", err)
	}
	out, err := d.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("ps: zstd decode: %w", err)
	}
	return out, nil
}
