package logfile

import (
	"encoding/binary"
	"io"
	"math/bits"
	"testing"

	"github.com/pallassgj/ntfs/core/journal/mst"
	"github.com/pallassgj/ntfs/core/journal/pagecache"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Header and area field offsets used by the mutation tests.  The area
// offsets are relative to the restart area start.
const (
	hdrUsaOfs     = 4
	hdrUsaCount   = 6
	hdrChkdskLSN  = 8
	hdrSysPage    = 16
	hdrLogPage    = 20
	hdrRaOfs      = 24
	hdrMinorVer   = 26
	hdrMajorVer   = 28
	areaLSN       = 0
	areaClients   = 8
	areaFreeList  = 10
	areaInUseList = 12
	areaFlags     = 14
	areaSeqBits   = 16
	areaLen       = 20
	areaCaOfs     = 22
	areaFileSize  = 24
	areaRecHdrLen = 36
	areaDataOfs   = 38
)

// Fixture defaults.
const (
	testPageSize    = 4096
	testJournalSize = int64(2*testPageSize + MinLogRecordPages*testPageSize)
	testRaOfs       = 48
	testCaOfs       = 48
)

// validRestartPage builds an unprotected, structurally valid restart page:
// RSTR magic, version 1.1, one log client parked on the free list.  The
// restart area starts right after the update sequence array, rounded up to
// the required alignment.
func validRestartPage(t *testing.T, sysPage uint32) []byte {
	t.Helper()
	usaCount := uint16(1 + sysPage/BlockSize)
	raOfs := (uint16(restartPageHeaderSize) + 2*usaCount + 7) &^ 7

	b := make([]byte, sysPage)
	binary.LittleEndian.PutUint32(b[0:], MagicRSTR)
	binary.LittleEndian.PutUint16(b[hdrUsaOfs:], restartPageHeaderSize)
	binary.LittleEndian.PutUint16(b[hdrUsaCount:], usaCount)
	binary.LittleEndian.PutUint32(b[hdrSysPage:], sysPage)
	binary.LittleEndian.PutUint32(b[hdrLogPage:], DefaultLogPageSize)
	binary.LittleEndian.PutUint16(b[hdrRaOfs:], raOfs)
	binary.LittleEndian.PutUint16(b[hdrMinorVer:], 1)
	binary.LittleEndian.PutUint16(b[hdrMajorVer:], 1)

	a := b[raOfs:]
	binary.LittleEndian.PutUint64(a[areaLSN:], 64)
	binary.LittleEndian.PutUint16(a[areaClients:], 1)
	binary.LittleEndian.PutUint16(a[areaFreeList:], 0)
	binary.LittleEndian.PutUint16(a[areaInUseList:], NoClient)
	binary.LittleEndian.PutUint32(a[areaSeqBits:], uint32(67-bits.Len64(uint64(testJournalSize))))
	binary.LittleEndian.PutUint16(a[areaLen:], testCaOfs+logClientRecordSize)
	binary.LittleEndian.PutUint16(a[areaCaOfs:], testCaOfs)
	binary.LittleEndian.PutUint64(a[areaFileSize:], uint64(testJournalSize))
	binary.LittleEndian.PutUint16(a[areaRecHdrLen:], 48)
	binary.LittleEndian.PutUint16(a[areaDataOfs:], 64)

	setClientLinks(b, 0, NoClient, NoClient)
	return b
}

// pageRaOfs reads the restart area offset the page declares.
func pageRaOfs(page []byte) int {
	return int(binary.LittleEndian.Uint16(page[hdrRaOfs:]))
}

// setClientLinks writes the prev/next indices of client record idx.
func setClientLinks(page []byte, idx int, prev, next uint16) {
	rec := page[pageRaOfs(page)+testCaOfs+idx*logClientRecordSize:]
	binary.LittleEndian.PutUint16(rec[clientPrevOffset:], prev)
	binary.LittleEndian.PutUint16(rec[clientNextOffset:], next)
}

func putArea16(page []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(page[pageRaOfs(page)+off:], v)
}

func putArea32(page []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(page[pageRaOfs(page)+off:], v)
}

func putArea64(page []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(page[pageRaOfs(page)+off:], v)
}

// protect applies multi sector transfer protection in place.
func protect(t *testing.T, page []byte) []byte {
	t.Helper()
	require.NoError(t, mst.PreWriteFixup(page))
	return page
}

// memJournal is an in-memory journal attribute recording read and fill
// activity for assertions.
type memJournal struct {
	data     []byte
	reads    int
	failRead error
	failFill error
}

func (m *memJournal) ReadAt(p []byte, off int64) (int, error) {
	m.reads++
	if m.failRead != nil {
		return 0, m.failRead
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memJournal) Size() int64 { return int64(len(m.data)) }

func (m *memJournal) Fill(off, n int64, b byte) error {
	if m.failFill != nil {
		return m.failFill
	}
	for i := off; i < off+n; i++ {
		m.data[i] = b
	}
	return nil
}

// journalBytes lays out a journal image of testJournalSize bytes, empty-fill
// everywhere except the supplied pages.
func journalBytes(t *testing.T, pages map[int64][]byte) []byte {
	t.Helper()
	data := make([]byte, testJournalSize)
	for i := range data {
		data[i] = EmptyFillByte
	}
	for pos, page := range pages {
		copy(data[pos:], page)
	}
	return data
}

// setupJournal builds a Journal over the given image with a 4096-byte page
// cache granularity.
func setupJournal(t *testing.T, data []byte) (*Journal, *memJournal) {
	t.Helper()
	m := &memJournal{data: data}
	cache, err := pagecache.New(m, zap.NewNop(), 16, testPageSize)
	require.NoError(t, err)
	return NewJournal(m, cache, zap.NewNop()), m
}
