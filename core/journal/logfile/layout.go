// Package logfile validates and recovers the NTFS metadata journal
// ("$LogFile").  It inspects the journal's two restart pages to decide
// whether the volume was shut down cleanly and which restart page is
// authoritative; ordinary log record pages are never replayed.
package logfile

import "encoding/binary"

// NTFS logical block geometry.  Multi sector transfer protection and the
// restart page header bounds are all expressed in these units.
const (
	BlockSize      = 512
	blockSizeShift = 9
)

// Magic numbers found in the first four bytes of a journal page, read as a
// little-endian u32 of the ASCII tag.
const (
	// MagicRSTR marks a restart page.
	MagicRSTR uint32 = 0x52545352
	// MagicCHKD marks a restart page rewritten by a disk repair tool.
	MagicCHKD uint32 = 0x444b4843
	// MagicRCRD marks a log record page.
	MagicRCRD uint32 = 0x44524352
	// MagicEmpty marks a page that has never been written since the
	// journal was last emptied.
	MagicEmpty uint32 = 0xffffffff
)

// Journal limits, fixed by the on-disk format this package supports.
const (
	// MaxLogFileSize caps how much of an oversized journal is scanned.
	MaxLogFileSize int64 = 1 << 32
	// DefaultLogPageSize is the journal page size assumed when the host
	// paging granularity is unusable.
	DefaultLogPageSize = 4096
	// MinLogRecordPages is the minimum number of log record pages a
	// journal must have room for beyond its two restart pages.
	MinLogRecordPages = 48
	// EmptyFillByte is the pattern an emptied journal is filled with.
	EmptyFillByte byte = 0xff
)

// NoClient is the sentinel terminating the client free and in-use lists.
const NoClient uint16 = 0xffff

// VolumeIsClean is the restart area flag bit recording a clean shutdown.
const VolumeIsClean uint16 = 0x0002

// Fixed sizes and field offsets of the on-disk records.
const (
	restartPageHeaderSize = 30
	restartAreaSize       = 48
	logClientRecordSize   = 160

	// Offset of the file_size field within the restart area.  Everything
	// up to and including it must precede the first fixup-protected word
	// of the first block before the rest of the area may be read.
	fileSizeFieldOffset = 24

	// prev_client / next_client offsets within a log client record.
	clientPrevOffset = 16
	clientNextOffset = 18
)

// LSN is a logical sequence number.  LSNs are signed 64-bit values that
// never decrease across journal writes, so the larger of two restart pages'
// LSNs identifies the more recent one.
type LSN int64

// restartPageHeader is the fixed 30-byte prefix of a restart page.
type restartPageHeader struct {
	Magic             uint32
	UsaOfs            uint16
	UsaCount          uint16
	ChkdskLSN         LSN
	SystemPageSize    uint32
	LogPageSize       uint32
	RestartAreaOffset uint16
	MinorVer          int16
	MajorVer          int16
}

func decodeRestartPageHeader(b []byte) restartPageHeader {
	return restartPageHeader{
		Magic:             binary.LittleEndian.Uint32(b[0:]),
		UsaOfs:            binary.LittleEndian.Uint16(b[4:]),
		UsaCount:          binary.LittleEndian.Uint16(b[6:]),
		ChkdskLSN:         LSN(binary.LittleEndian.Uint64(b[8:])),
		SystemPageSize:    binary.LittleEndian.Uint32(b[16:]),
		LogPageSize:       binary.LittleEndian.Uint32(b[20:]),
		RestartAreaOffset: binary.LittleEndian.Uint16(b[24:]),
		MinorVer:          int16(binary.LittleEndian.Uint16(b[26:])),
		MajorVer:          int16(binary.LittleEndian.Uint16(b[28:])),
	}
}

// restartArea is the 48-byte record at the header's restart_area_offset,
// followed on disk by the log client record array.
type restartArea struct {
	CurrentLSN            LSN
	LogClients            uint16
	ClientFreeList        uint16
	ClientInUseList       uint16
	Flags                 uint16
	SeqNumberBits         uint32
	RestartAreaLength     uint16
	ClientArrayOffset     uint16
	FileSize              int64
	LastLSNDataLength     uint32
	LogRecordHeaderLength uint16
	LogPageDataOffset     uint16
	RestartLogOpenCount   uint32
}

func decodeRestartArea(b []byte) restartArea {
	return restartArea{
		CurrentLSN:            LSN(binary.LittleEndian.Uint64(b[0:])),
		LogClients:            binary.LittleEndian.Uint16(b[8:]),
		ClientFreeList:        binary.LittleEndian.Uint16(b[10:]),
		ClientInUseList:       binary.LittleEndian.Uint16(b[12:]),
		Flags:                 binary.LittleEndian.Uint16(b[14:]),
		SeqNumberBits:         binary.LittleEndian.Uint32(b[16:]),
		RestartAreaLength:     binary.LittleEndian.Uint16(b[20:]),
		ClientArrayOffset:     binary.LittleEndian.Uint16(b[22:]),
		FileSize:              int64(binary.LittleEndian.Uint64(b[24:])),
		LastLSNDataLength:     binary.LittleEndian.Uint32(b[32:]),
		LogRecordHeaderLength: binary.LittleEndian.Uint16(b[36:]),
		LogPageDataOffset:     binary.LittleEndian.Uint16(b[38:]),
		RestartLogOpenCount:   binary.LittleEndian.Uint32(b[40:]),
	}
}

// RestartPage is a validated, fixup-deprotected restart page.  It is the
// scanner's result; the buffer is owned by the caller.
type RestartPage struct {
	data []byte // complete page, system_page_size bytes
	pos  int64  // byte position within the journal it was read from
	lsn  LSN
}

// LSN returns the page's logical sequence number: the restart area's
// current LSN, or the repair tool's LSN for a repair-modified page.
func (rp *RestartPage) LSN() LSN { return rp.lsn }

// Pos returns the journal offset the page was loaded from.
func (rp *RestartPage) Pos() int64 { return rp.pos }

// Data returns the deprotected page contents.
func (rp *RestartPage) Data() []byte { return rp.data }

// SystemPageSize returns the page size declared by the page itself.
func (rp *RestartPage) SystemPageSize() uint32 {
	return rp.header().SystemPageSize
}

func (rp *RestartPage) header() restartPageHeader {
	return decodeRestartPageHeader(rp.data)
}

func (rp *RestartPage) area() restartArea {
	h := rp.header()
	return decodeRestartArea(rp.data[h.RestartAreaOffset:])
}
