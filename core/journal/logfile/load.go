package logfile

import (
	"errors"
	"fmt"

	"github.com/pallassgj/ntfs/core/journal/mst"
	"github.com/pallassgj/ntfs/core/journal/pagecache"
	"go.uber.org/zap"
)

// loadRestartPage validates the restart page whose first bytes are in prefix
// and returns a complete, fixup-deprotected copy together with its LSN.
// prefix is the mapped data from pos to the end of the containing cache
// page; when the page extends beyond it, the remainder is read through the
// pager one page at a time.  pos is the candidate's byte position within the
// journal.
//
// Failures are ErrInvalidLogFile for any structural rule violation,
// ErrNoMemory when a page frame cannot be obtained, and ErrIO for anything
// else the pager reports.
func (j *Journal) loadRestartPage(prefix []byte, pos int64) (*RestartPage, error) {
	if !j.restartPageHeaderIsValid(prefix, pos) {
		return nil, fmt.Errorf("restart page header at %d: %w", pos, ErrInvalidLogFile)
	}
	if !j.restartAreaIsValid(prefix) {
		return nil, fmt.Errorf("restart area at %d: %w", pos, ErrInvalidLogFile)
	}
	h := decodeRestartPageHeader(prefix)
	size := int(h.SystemPageSize)

	// Assemble the complete page.  The prefix often already covers it;
	// otherwise copy what is there and fetch the page-aligned remainder.
	buf := make([]byte, size)
	if len(prefix) >= size {
		copy(buf, prefix[:size])
	} else {
		have := copy(buf, prefix)
		for have < size {
			p, data, err := j.pager.Map(pos + int64(have))
			if err != nil {
				return nil, j.normalizePagerError(err)
			}
			have += copy(buf[have:], data)
			j.pager.Unmap(p)
		}
	}

	// Deprotect the assembled page unless a repair tool stripped its
	// update sequence array.
	if h.Magic != MagicCHKD || h.UsaCount != 0 {
		if err := mst.PostReadFixup(buf); err != nil {
			// A torn write is fatal only when the restart area
			// reaches past the protected region of the first
			// block, i.e. when the damage can touch it.
			ra := decodeRestartArea(prefix[h.RestartAreaOffset:])
			if int(h.RestartAreaOffset)+int(ra.RestartAreaLength) > BlockSize-2 {
				j.logger.Warn("incomplete multi sector transfer in restart page",
					zap.Int64("pos", pos), zap.Error(err))
				return nil, fmt.Errorf("restart page at %d: %w", pos, ErrInvalidLogFile)
			}
			j.logger.Debug("tolerating multi sector transfer mismatch outside the restart area",
				zap.Int64("pos", pos))
		}
	}

	ra := decodeRestartArea(buf[h.RestartAreaOffset:])
	// A page with open clients must have a consistent client array; a
	// repair-modified page is trusted as rewritten.
	if h.Magic == MagicRSTR && ra.ClientInUseList != NoClient {
		if !j.logClientArrayIsConsistent(buf) {
			return nil, fmt.Errorf("log client array at %d: %w", pos, ErrInvalidLogFile)
		}
	}

	lsn := ra.CurrentLSN
	if h.Magic == MagicCHKD {
		lsn = h.ChkdskLSN
	}
	return &RestartPage{data: buf, pos: pos, lsn: lsn}, nil
}

// normalizePagerError folds pager failures into the package's error kinds:
// frame exhaustion becomes ErrNoMemory, everything else ErrIO.
func (j *Journal) normalizePagerError(err error) error {
	if errors.Is(err, pagecache.ErrNoFrames) {
		return fmt.Errorf("%w: %v", ErrNoMemory, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
