//go:build unix

package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// openMapped memory-maps the file at path. ok is false when mapping is not
// applicable (empty file), letting the caller fall back to plain reads.
func openMapped(path string) (Blob, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, true, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, true, err
	}
	if st.Size() == 0 {
		f.Close()
		return nil, false, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	// The mapping keeps the pages alive; the descriptor is no longer needed.
	f.Close()
	if err != nil {
		return nil, false, nil
	}
	return &mappedBlob{data: data}, true, nil
}

type mappedBlob struct {
	data []byte
}

func (b *mappedBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *mappedBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= int64(len(b.data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	return io.NopCloser(bytes.NewReader(b.data[off:end])), nil
}

func (b *mappedBlob) Size() int64 {
	return int64(len(b.data))
}

func (b *mappedBlob) Close() error {
	return unix.Munmap(b.data)
}
