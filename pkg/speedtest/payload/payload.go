// Package payload generates upload bodies.
package payload

import (
	"crypto/rand"
	"errors"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// ErrInvalidSize is returned for negative sizes.
var ErrInvalidSize = errors.New("payload size must be >= 0")

// Generate returns size bytes of random, non-compressible content. The
// buffer is filled spec.ChunkSize bytes at a time. Callers treat the result
// as read-only and reuse it across requests.
func Generate(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	buf := make([]byte, size)
	for off := 0; off < size; off += spec.ChunkSize {
		end := off + spec.ChunkSize
		if end > size {
			end = size
		}
		if _, err := rand.Read(buf[off:end]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
