package pagecache

import "container/list"

// InvalidPos marks a frame that does not hold any attribute page.
const InvalidPos int64 = -1

// Page is an in-memory frame holding one attribute-aligned page.  A mapped
// (pinned) page is guaranteed to stay resident until every mapping is
// released.
type Page struct {
	pos      int64 // aligned byte position within the attribute
	data     []byte
	pinCount uint32
	lruElem  *list.Element
}

func newPage(size int) *Page {
	return &Page{pos: InvalidPos, data: make([]byte, size)}
}

// Pos returns the aligned attribute position this frame holds.
func (p *Page) Pos() int64 { return p.pos }

// Data returns the page contents.  The slice is only valid while the page is
// mapped.
func (p *Page) Data() []byte { return p.data }

func (p *Page) pin()  { p.pinCount++ }
func (p *Page) pinned() bool { return p.pinCount > 0 }

func (p *Page) unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *Page) reset() {
	p.pos = InvalidPos
	p.pinCount = 0
	p.lruElem = nil
}
