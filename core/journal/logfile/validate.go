package logfile

import (
	"encoding/binary"
	"math/bits"

	"go.uber.org/zap"
)

// restartPageHeaderIsValid checks the restart page header in b for
// consistency.  pos is the byte position within the journal the page was
// read from.  Only the first block of the page is needed.
func (j *Journal) restartPageHeaderIsValid(b []byte, pos int64) bool {
	h := decodeRestartPageHeader(b)
	// Page sizes smaller than the block size or not powers of two cannot
	// be handled.
	sysPage := h.SystemPageSize
	logPage := h.LogPageSize
	if sysPage < BlockSize || logPage < BlockSize ||
		sysPage&(sysPage-1) != 0 || logPage&(logPage-1) != 0 {
		j.logger.Warn("restart page uses unsupported page size",
			zap.Uint32("system_page_size", sysPage),
			zap.Uint32("log_page_size", logPage))
		return false
	}
	// A restart page lives either at the start of the journal or exactly
	// one system page in.
	if pos != 0 && pos != int64(sysPage) {
		j.logger.Warn("restart page at incorrect position", zap.Int64("pos", pos))
		return false
	}
	if h.MajorVer != 1 || h.MinorVer != 1 {
		j.logger.Warn("unsupported journal version",
			zap.Int16("major", h.MajorVer), zap.Int16("minor", h.MinorVer))
		return false
	}
	// A page rewritten by a disk repair tool may have no update sequence
	// array at all; otherwise the array must cover the whole page and sit
	// between the header and the first protected word of the first block.
	haveUSA := true
	var usaEnd uint32
	if h.Magic == MagicCHKD && h.UsaCount == 0 {
		haveUSA = false
	} else {
		if uint32(h.UsaCount) != 1+sysPage>>blockSizeShift {
			j.logger.Warn("inconsistent update sequence array count",
				zap.Uint16("usa_count", h.UsaCount))
			return false
		}
		usaEnd = uint32(h.UsaOfs) + uint32(h.UsaCount)*2
		if h.UsaOfs < restartPageHeaderSize || usaEnd > BlockSize-2 {
			j.logger.Warn("inconsistent update sequence array offset",
				zap.Uint16("usa_ofs", h.UsaOfs))
			return false
		}
	}
	// The restart area must be 8-byte aligned, after the update sequence
	// array (or the header when there is none), and within the page.
	raOfs := uint32(h.RestartAreaOffset)
	minOfs := usaEnd
	if !haveUSA {
		minOfs = restartPageHeaderSize
	}
	if raOfs&7 != 0 || raOfs < minOfs || raOfs > sysPage {
		j.logger.Warn("inconsistent restart area offset", zap.Uint32("ra_ofs", raOfs))
		return false
	}
	// Only repair-modified pages may carry a repair LSN.
	if h.Magic != MagicCHKD && h.ChkdskLSN != 0 {
		j.logger.Warn("repair LSN set on a page not modified by a repair tool",
			zap.Int64("chkdsk_lsn", int64(h.ChkdskLSN)))
		return false
	}
	return true
}

// restartAreaIsValid checks the restart area of the restart page in b for
// consistency.  It assumes the header already passed and, like the header
// check, needs only the first block plus enough of b to decode the area
// record itself.
func (j *Journal) restartAreaIsValid(b []byte) bool {
	h := decodeRestartPageHeader(b)
	raOfs := int(h.RestartAreaOffset)
	// Everything up to and including file_size must lie before the first
	// fixup-protected word of the first block, otherwise the later fields
	// cannot be trusted before deprotection.
	if raOfs+fileSizeFieldOffset > BlockSize-2 {
		j.logger.Warn("restart area extends into the protected region",
			zap.Int("ra_ofs", raOfs))
		return false
	}
	if raOfs+restartAreaSize > len(b) {
		j.logger.Warn("restart area truncated by short read", zap.Int("ra_ofs", raOfs))
		return false
	}
	ra := decodeRestartArea(b[raOfs:])
	// The client array offset must be 8-byte aligned and start before the
	// protected word too.
	caOfs := int(ra.ClientArrayOffset)
	if caOfs&7 != 0 || raOfs+caOfs > BlockSize-2 {
		j.logger.Warn("inconsistent client array offset", zap.Int("ca_ofs", caOfs))
		return false
	}
	// The area must end within the system page both as computed from the
	// client count and as declared, and the computed length must not
	// exceed the declared one.
	raLen := caOfs + int(ra.LogClients)*logClientRecordSize
	sysPage := int(h.SystemPageSize)
	if raOfs+raLen > sysPage || raOfs+int(ra.RestartAreaLength) > sysPage ||
		raLen > int(ra.RestartAreaLength) {
		j.logger.Warn("restart area out of bounds",
			zap.Int("computed_len", raLen),
			zap.Uint16("declared_len", ra.RestartAreaLength))
		return false
	}
	// List heads are either the sentinel or indices into the client array.
	if (ra.ClientFreeList != NoClient && ra.ClientFreeList >= ra.LogClients) ||
		(ra.ClientInUseList != NoClient && ra.ClientInUseList >= ra.LogClients) {
		j.logger.Warn("client list head overflows the client array",
			zap.Uint16("free_list", ra.ClientFreeList),
			zap.Uint16("in_use_list", ra.ClientInUseList))
		return false
	}
	// seq_number_bits is derived from the file size; the size is not a
	// power of two so count its significant bits directly.
	if ra.SeqNumberBits != uint32(67-bits.Len64(uint64(ra.FileSize))) {
		j.logger.Warn("inconsistent sequence number bits",
			zap.Uint32("seq_number_bits", ra.SeqNumberBits),
			zap.Int64("file_size", ra.FileSize))
		return false
	}
	if ra.LogRecordHeaderLength%8 != 0 {
		j.logger.Warn("log record header length not 8-byte aligned",
			zap.Uint16("len", ra.LogRecordHeaderLength))
		return false
	}
	if ra.LogPageDataOffset%8 != 0 {
		j.logger.Warn("log page data offset not 8-byte aligned",
			zap.Uint16("ofs", ra.LogPageDataOffset))
		return false
	}
	return true
}

// logClientArrayIsConsistent walks the client free and in-use lists of the
// restart page in page, which must be the complete, fixup-deprotected page.
// It assumes the header and area checks already passed.
//
// The two lists are index-linked over one fixed array, so a budget of
// log_clients visits shared across both lists bounds the walk: exhausting it
// means a cycle or an element claimed by both lists.
func (j *Journal) logClientArrayIsConsistent(page []byte) bool {
	h := decodeRestartPageHeader(page)
	raOfs := int(h.RestartAreaOffset)
	ra := decodeRestartArea(page[raOfs:])
	caStart := raOfs + int(ra.ClientArrayOffset)

	budget := int(ra.LogClients)
	for _, head := range [2]uint16{ra.ClientFreeList, ra.ClientInUseList} {
		first := true
		for idx := head; idx != NoClient; {
			if budget == 0 || idx >= ra.LogClients {
				j.logger.Warn("log client array is corrupt", zap.Uint16("idx", idx))
				return false
			}
			budget--
			rec := page[caStart+int(idx)*logClientRecordSize:]
			prev := binary.LittleEndian.Uint16(rec[clientPrevOffset:])
			next := binary.LittleEndian.Uint16(rec[clientNextOffset:])
			// A list head must not have a previous link.
			if first {
				if prev != NoClient {
					j.logger.Warn("log client list head has a previous link",
						zap.Uint16("idx", idx), zap.Uint16("prev", prev))
					return false
				}
				first = false
			}
			idx = next
		}
	}
	return true
}
