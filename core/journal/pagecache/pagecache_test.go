package pagecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fileBacking adapts a plain os.File for the tests; the real journal code
// uses attr.File, which has the same shape.
type fileBacking struct {
	f    *os.File
	size int64
}

func (b *fileBacking) ReadAt(p []byte, off int64) (int, error) { return b.f.ReadAt(p, off) }
func (b *fileBacking) Size() int64                             { return b.size }

func setupCache(t *testing.T, poolSize, pageSize, fileSize int) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.bin")
	data := make([]byte, fileSize)
	for i := range data {
		data[i] = byte(i / pageSize) // page index as content marker
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	c, err := New(&fileBacking{f: f, size: int64(fileSize)}, zap.NewNop(), poolSize, pageSize)
	require.NoError(t, err)
	return c
}

func TestMapReturnsAlignedPage(t *testing.T) {
	c := setupCache(t, 4, 1024, 8*1024)

	p, data, err := c.Map(2500) // inside page 2
	require.NoError(t, err)
	require.Equal(t, int64(2048), p.Pos())
	require.Len(t, data, 1024)
	require.Equal(t, byte(2), data[0])
	c.Unmap(p)
}

func TestMapReusesResidentPage(t *testing.T) {
	c := setupCache(t, 4, 1024, 8*1024)

	p1, _, err := c.Map(0)
	require.NoError(t, err)
	p2, _, err := c.Map(512)
	require.NoError(t, err)
	require.Same(t, p1, p2, "positions in the same page must share a frame")
	c.Unmap(p1)
	c.Unmap(p2)
}

func TestEvictionPrefersUnpinned(t *testing.T) {
	c := setupCache(t, 2, 1024, 8*1024)

	p0, _, err := c.Map(0)
	require.NoError(t, err)
	p1, _, err := c.Map(1024)
	require.NoError(t, err)
	c.Unmap(p1) // page 1 becomes evictable, page 0 stays pinned

	p2, data, err := c.Map(2048)
	require.NoError(t, err)
	require.Equal(t, byte(2), data[0])
	c.Unmap(p2)
	c.Unmap(p0)

	// Page 0 must still be resident (it was pinned during the eviction).
	p, data, err := c.Map(0)
	require.NoError(t, err)
	require.Equal(t, byte(0), data[0])
	c.Unmap(p)
}

func TestMapFailsWhenAllFramesPinned(t *testing.T) {
	c := setupCache(t, 2, 1024, 8*1024)

	p0, _, err := c.Map(0)
	require.NoError(t, err)
	p1, _, err := c.Map(1024)
	require.NoError(t, err)

	_, _, err = c.Map(2048)
	require.ErrorIs(t, err, ErrNoFrames)

	c.Unmap(p0)
	c.Unmap(p1)

	// With a pin released the same request must now succeed.
	p2, _, err := c.Map(2048)
	require.NoError(t, err)
	c.Unmap(p2)
}

func TestMapZeroFillsShortTail(t *testing.T) {
	c := setupCache(t, 2, 1024, 1536) // attribute ends mid-page

	p, data, err := c.Map(1024)
	require.NoError(t, err)
	require.Equal(t, byte(1), data[0])
	for i := 512; i < 1024; i++ {
		require.Zero(t, data[i])
	}
	c.Unmap(p)

	_, _, err = c.Map(2048)
	require.ErrorIs(t, err, ErrOutOfRange)
}
