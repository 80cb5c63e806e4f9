// Package pagecache implements paged read access to a journal attribute: a
// fixed pool of page frames with pin counts and LRU eviction.  Callers map a
// byte position, receive the pinned frame holding the aligned page around it,
// and unmap it when done.
package pagecache

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Errors returned by Map.  Read failures of the backing attribute are
// returned wrapped and unchanged.
var (
	// ErrNoFrames means every frame in the pool is pinned and nothing can
	// be evicted.  Callers treat this as resource exhaustion.
	ErrNoFrames = errors.New("pagecache: all frames pinned, nothing to evict")
	// ErrOutOfRange means the requested position lies entirely beyond the
	// end of the backing attribute.
	ErrOutOfRange = errors.New("pagecache: position beyond end of attribute")
)

// Backing is the read side of the journal attribute the cache maps pages
// from.
type Backing interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}

// Cache is a pool of page frames over a backing attribute.  The page size
// must be a power of two; it plays the role of the host paging granularity
// for the journal code built on top.
type Cache struct {
	backing  Backing
	logger   *zap.Logger
	pageSize int

	mu     sync.Mutex
	frames []*Page
	table  map[int64]int // aligned position -> frame index
	lru    *list.List    // frame indices, front = most recently used
	lruMap map[int]*list.Element
}

// New creates a cache of poolSize frames of pageSize bytes each.
func New(backing Backing, logger *zap.Logger, poolSize, pageSize int) (*Cache, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("pagecache: pool size must be positive, got %d", poolSize)
	}
	if pageSize <= 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("pagecache: page size must be a power of two, got %d", pageSize)
	}
	c := &Cache{
		backing:  backing,
		logger:   logger.Named("pagecache"),
		pageSize: pageSize,
		frames:   make([]*Page, poolSize),
		table:    make(map[int64]int),
		lru:      list.New(),
		lruMap:   make(map[int]*list.Element),
	}
	for i := range c.frames {
		c.frames[i] = newPage(pageSize)
	}
	return c, nil
}

// PageSize returns the cache granularity in bytes.
func (c *Cache) PageSize() int { return c.pageSize }

// Map pins and returns the frame holding the page containing pos, reading it
// from the backing attribute if it is not resident.  The returned slice is
// the full page starting at the aligned position.  Every successful Map must
// be paired with an Unmap.
func (c *Cache) Map(pos int64) (*Page, []byte, error) {
	aligned := pos &^ int64(c.pageSize-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.table[aligned]; ok {
		p := c.frames[idx]
		p.pin()
		if p.lruElem != nil {
			c.lru.MoveToFront(p.lruElem)
		}
		return p, p.data, nil
	}

	idx, err := c.victimFrame()
	if err != nil {
		return nil, nil, err
	}
	p := c.frames[idx]
	if err := c.readPage(p.data, aligned); err != nil {
		// The frame was already unhooked from the table and LRU, leave
		// it free for the next Map.
		p.reset()
		return nil, nil, err
	}
	p.pos = aligned
	p.pin()
	c.table[aligned] = idx
	p.lruElem = c.lru.PushFront(idx)
	c.lruMap[idx] = p.lruElem
	return p, p.data, nil
}

// Unmap releases one mapping of p.  Once the pin count drops to zero the
// frame becomes eligible for eviction.
func (c *Cache) Unmap(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.unpin()
}

// victimFrame returns the index of a frame ready to receive a new page,
// evicting the least recently used unpinned frame if necessary.  Must be
// called with c.mu held.
func (c *Cache) victimFrame() (int, error) {
	// Prefer a frame that never held a page.
	for i, p := range c.frames {
		if p.pos == InvalidPos && !p.pinned() && p.lruElem == nil {
			return i, nil
		}
	}
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		idx := e.Value.(int)
		p := c.frames[idx]
		if p.pinned() {
			continue
		}
		delete(c.table, p.pos)
		c.lru.Remove(e)
		delete(c.lruMap, idx)
		p.reset()
		return idx, nil
	}
	c.logger.Warn("no evictable frame", zap.Int("pool_size", len(c.frames)))
	return 0, ErrNoFrames
}

// readPage fills buf with the page at the aligned position, zero-filling
// past the end of the attribute when the last page is short.
func (c *Cache) readPage(buf []byte, aligned int64) error {
	if aligned >= c.backing.Size() {
		return fmt.Errorf("pagecache: map at %d: %w", aligned, ErrOutOfRange)
	}
	n, err := c.backing.ReadAt(buf, aligned)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("pagecache: read page at %d: %w", aligned, err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}
