package logfile

import (
	"sync"

	"github.com/pallassgj/ntfs/core/journal/pagecache"
	"go.uber.org/zap"
)

// Attribute is the write side of the journal's data stream: the logical size
// accessor and the bulk fill used by Empty.  Reads go through the Pager.
type Attribute interface {
	Size() int64
	Fill(off, n int64, b byte) error
}

// Pager provides scoped, pinned read access to journal pages.  Its page size
// is the host paging granularity the scanner derives the effective journal
// page size from.
type Pager interface {
	Map(pos int64) (*pagecache.Page, []byte, error)
	Unmap(p *pagecache.Page)
	PageSize() int
}

// Journal is the $LogFile of one mounted volume.  All methods are safe for
// concurrent use; Check and Empty hold the journal's shared lock for their
// duration and the caller serializes Empty against concurrent scans (the
// journal is only ever emptied once, at mount time).
type Journal struct {
	logger *zap.Logger
	attr   Attribute
	pager  Pager

	// lock is the journal-wide shared/exclusive lock.  Scans and the
	// emptying write both take it shared, matching the surrounding
	// driver's locking discipline.
	lock sync.RWMutex

	// mu guards empty.  The flag transitions from unknown to known-empty
	// through Check or Empty and never back; a new Journal is the only
	// re-initialization.
	mu    sync.Mutex
	empty bool
}

// NewJournal wraps the journal attribute and pager of a volume.
func NewJournal(a Attribute, p Pager, logger *zap.Logger) *Journal {
	return &Journal{
		logger: logger.Named("logfile"),
		attr:   a,
		pager:  p,
	}
}

// KnownEmpty reports whether a previous scan or reset has already
// established that the journal holds no data.
func (j *Journal) KnownEmpty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.empty
}

func (j *Journal) markEmpty() {
	j.mu.Lock()
	j.empty = true
	j.mu.Unlock()
}
