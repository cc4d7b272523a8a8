package payload

import (
	"bytes"
	"compress/flate"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

func TestGenerateSizes(t *testing.T) {
	for _, size := range []int{0, 1, spec.ChunkSize - 1, spec.ChunkSize, spec.ChunkSize + 1, 500_000} {
		buf, err := Generate(size)
		require.NoError(t, err)
		assert.Len(t, buf, size)
	}
}

func TestGenerateNegative(t *testing.T) {
	_, err := Generate(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestGenerateIsNotCompressible(t *testing.T) {
	buf, err := Generate(500_000)
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestCompression)
	require.NoError(t, err)
	_, err = w.Write(buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Random content does not shrink in any meaningful way.
	assert.Greater(t, out.Len(), len(buf)*99/100)

	// The tail past the last full chunk is filled as well.
	tail := buf[len(buf)-(len(buf)%spec.ChunkSize):]
	assert.NotEqual(t, make([]byte, len(tail)), tail)
}
