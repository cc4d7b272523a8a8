// Package stream implements the byte source and byte sink behind the
// download and upload endpoints. Neither side ever holds a whole payload in
// memory unless the caller handed it one.
package stream

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// ErrShortWrite is returned when a writer accepts fewer bytes than offered
// without reporting an error.
var ErrShortWrite = errors.New("short write")

// filler is the content of every download chunk. It is never written to.
var filler = bytes.Repeat([]byte{'a'}, spec.ChunkSize)

// Source writes exactly size bytes to w, one chunk at a time, and returns the
// number of bytes written.
//
// Each Write blocks while the transport cannot accept more data, which is
// how backpressure suspends the loop. The context is checked before every
// chunk: once it is done no further write is attempted and ctx.Err() is
// returned. If chunk is empty the package filler is used.
func Source(ctx context.Context, w io.Writer, size int64, chunk []byte) (int64, error) {
	if len(chunk) == 0 {
		chunk = filler
	}
	var sent int64
	for sent < size {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}
		n := int64(len(chunk))
		if remaining := size - sent; remaining < n {
			n = remaining
		}
		written, err := w.Write(chunk[:n])
		sent += int64(written)
		if err != nil {
			return sent, err
		}
		if int64(written) != n {
			return sent, ErrShortWrite
		}
	}
	return sent, nil
}

// CountBody reports the size of a body the transport already buffered.
func CountBody(body []byte) int64 {
	return int64(len(body))
}

// CountStream reads r until EOF and returns the number of bytes read. The
// data itself is discarded. On a read error or a done context the partial
// count is dropped and only the error is returned.
func CountStream(ctx context.Context, r io.Reader) (int64, error) {
	buf := make([]byte, spec.ChunkSize)
	var received int64
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		n, err := r.Read(buf)
		received += int64(n)
		if errors.Is(err, io.EOF) {
			return received, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
