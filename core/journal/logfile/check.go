package logfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/google/uuid"
	"github.com/pallassgj/ntfs/core/journal/pagecache"
	"go.uber.org/zap"
)

// Check scans the journal for its two restart pages and returns the
// authoritative one, i.e. the valid candidate with the larger LSN.
//
// A nil page with a nil error means the journal is empty: it has never been
// written since it was last emptied and the volume is therefore clean.  The
// determination is cached, so later calls return immediately.
//
// Errors are ErrInvalidLogFile when the journal is too small, holds no valid
// restart page despite being non-empty, or is otherwise corrupt beyond both
// candidates; ErrIO and ErrNoMemory abort the scan as soon as they occur.
// Repeated scans of an unmodified journal return equivalent results.
func (j *Journal) Check() (*RestartPage, error) {
	scansTotal.Inc()
	log := j.logger.With(zap.String("scan_id", uuid.NewString()))

	// An empty journal must have been clean before it got emptied.
	if j.KnownEmpty() {
		log.Debug("journal already known empty")
		return nil, nil
	}

	j.lock.RLock()
	defer j.lock.RUnlock()

	size := j.attr.Size()
	if size > MaxLogFileSize {
		size = MaxLogFileSize
	}
	// Derive the effective journal page size from the paging granularity:
	// use the granularity while it is within a factor of two of the
	// default journal page size, otherwise fall back to the default.
	granularity := j.pager.PageSize()
	logPageSize := DefaultLogPageSize
	if granularity >= DefaultLogPageSize && granularity <= 2*DefaultLogPageSize {
		logPageSize = granularity
	}
	logPageBits := bits.TrailingZeros(uint(logPageSize))
	size &^= int64(logPageSize - 1)
	// The journal must hold its two restart pages plus a minimum of log
	// record pages.
	if size < 2*int64(logPageSize) ||
		(size-2*int64(logPageSize))>>logPageBits < MinLogRecordPages {
		log.Warn("journal is too small", zap.Int64("size", size))
		return nil, fmt.Errorf("journal size %d: %w", size, ErrInvalidLogFile)
	}

	// Restart pages sit at offset 0 and at one system page size, but the
	// system page size is not known until a restart page has been read.
	// Probe every power-of-two hypothesis instead: offset 0, then half a
	// block, doubling up to the truncated journal size.
	var (
		cur     *pagecache.Page
		curData []byte
		curPos  = int64(-1)
	)
	defer func() {
		if cur != nil {
			j.pager.Unmap(cur)
		}
	}()
	pageMask := int64(j.pager.PageSize() - 1)

	var rstr1, rstr2 *RestartPage
	journalIsEmpty := true
scan:
	for pos := int64(0); pos < size; pos = nextProbe(pos) {
		if aligned := pos &^ pageMask; cur == nil || aligned != curPos {
			if cur != nil {
				j.pager.Unmap(cur)
				cur = nil
			}
			p, data, err := j.pager.Map(pos)
			if err != nil {
				log.Error("error reading journal", zap.Int64("pos", pos), zap.Error(err))
				return nil, j.normalizePagerError(err)
			}
			cur, curData, curPos = p, data, aligned
		}
		block := curData[pos-curPos:]

		// An empty block before any data means keep looking; the first
		// empty block after data marks the journal's logical end.
		if binary.LittleEndian.Uint32(block) == MagicEmpty {
			if journalIsEmpty {
				continue
			}
			break scan
		}
		journalIsEmpty = false

		switch binary.LittleEndian.Uint32(block) {
		case MagicRCRD:
			// No restart page can follow a log record page.
			break scan
		case MagicRSTR, MagicCHKD:
		default:
			// Unrecognized contents; keep probing.
			continue
		}

		rp, err := j.loadRestartPage(block, pos)
		if err != nil {
			if errors.Is(err, ErrInvalidLogFile) {
				// An invalid candidate does not abort the scan, a
				// later offset may still hold a valid one.
				invalidRestartPagesTotal.Inc()
				continue
			}
			return nil, err
		}
		if rstr1 == nil {
			rstr1 = rp
			log.Debug("found first restart page",
				zap.Int64("pos", pos), zap.Int64("lsn", int64(rp.LSN())))
			// The second candidate, if any, sits at the declared
			// system page size; keep probing.
			continue
		}
		rstr2 = rp
		log.Debug("found second restart page",
			zap.Int64("pos", pos), zap.Int64("lsn", int64(rp.LSN())))
		break scan
	}
	if cur != nil {
		j.pager.Unmap(cur)
		cur = nil
	}

	if journalIsEmpty {
		j.markEmpty()
		emptyJournalsTotal.Inc()
		log.Info("journal is empty")
		return nil, nil
	}
	if rstr1 == nil {
		if rstr2 != nil {
			panic("logfile: second restart page recorded without a first")
		}
		log.Warn("no restart pages found in non-empty journal")
		return nil, fmt.Errorf("no restart pages found: %w", ErrInvalidLogFile)
	}
	if rstr2 != nil {
		candidateRacesTotal.Inc()
		// Keep the more recent restart page; on a tie the first wins.
		if rstr2.LSN() > rstr1.LSN() {
			log.Debug("using second restart page as it is more recent")
			rstr1 = rstr2
		} else {
			log.Debug("using first restart page as it is more recent")
		}
	}
	return rstr1, nil
}

// nextProbe advances the candidate offset: from 0 to half a block, then by
// doubling, so that every power-of-two page size hypothesis is visited.
func nextProbe(pos int64) int64 {
	if pos == 0 {
		return BlockSize / 2
	}
	return pos << 1
}
