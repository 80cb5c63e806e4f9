// Package attr provides file-backed access to a journal attribute's data
// stream: positioned reads for the page cache, the logical size, and the
// bulk fill used when the journal is emptied.
package attr

import (
	"fmt"
	"os"
	"sync"
)

// fillChunkSize bounds the scratch buffer used by Fill.
const fillChunkSize = 64 * 1024

// File is an os.File backed attribute stream.  It is safe for concurrent
// readers; Fill calls serialize against each other.
type File struct {
	f *os.File

	mu   sync.Mutex
	size int64
}

// Open opens the attribute stream at path read-write.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("attr: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("attr: stat %s: %w", path, err)
	}
	return &File{f: f, size: st.Size()}, nil
}

// Create creates (or truncates) the attribute stream at path with the given
// logical size.
func Create(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("attr: create %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("attr: truncate %s: %w", path, err)
	}
	return &File{f: f, size: size}, nil
}

// Size returns the logical size of the attribute stream.
func (a *File) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// ReadAt reads len(p) bytes at offset off.  It has os.File.ReadAt semantics.
func (a *File) ReadAt(p []byte, off int64) (int, error) {
	return a.f.ReadAt(p, off)
}

// Fill overwrites n bytes starting at off with the byte b and syncs the
// result to stable storage.
func (a *File) Fill(off, n int64, b byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	chunk := make([]byte, fillChunkSize)
	for i := range chunk {
		chunk[i] = b
	}
	for n > 0 {
		w := int64(len(chunk))
		if w > n {
			w = n
		}
		if _, err := a.f.WriteAt(chunk[:w], off); err != nil {
			return fmt.Errorf("attr: fill at %d: %w", off, err)
		}
		off += w
		n -= w
	}
	if err := a.f.Sync(); err != nil {
		return fmt.Errorf("attr: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (a *File) Close() error {
	return a.f.Close()
}
