// Package mst implements the NTFS multi sector transfer protection scheme.
//
// Records larger than a single sector carry an update sequence array (USA) in
// their header.  Before a protected record is written to disk, the last two
// bytes of every 512-byte sector are saved into the USA and replaced with the
// current update sequence number (USN).  A torn write therefore leaves at
// least one sector whose trailing word disagrees with the USN, which is
// detected when the record is read back and deprotected.
package mst

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// SectorSize is the NTFS logical sector (block) size the protection
	// scheme operates on.  It is independent of the device sector size.
	SectorSize = 512

	usaOfsOffset   = 4 // le16, relative to record start
	usaCountOffset = 6 // le16, relative to record start
)

// ErrFixupMismatch reports that at least one sector's trailing word did not
// match the update sequence number, i.e. an incomplete multi sector transfer
// was detected.  The caller decides whether the affected region matters.
var ErrFixupMismatch = errors.New("mst: incomplete multi sector transfer detected")

// PostReadFixup deprotects the record in b in place.  b must hold the
// complete record, its length a multiple of SectorSize, and the record's USA
// geometry must describe exactly len(b) bytes.
//
// The saved trailing words are restored for every sector, even when a
// mismatch is found, so that sectors which did transfer completely hold their
// true contents afterwards.  A mismatch is reported via ErrFixupMismatch.
func PostReadFixup(b []byte) error {
	size := len(b)
	if size < SectorSize || size%SectorSize != 0 {
		return fmt.Errorf("mst: record size %d is not a multiple of %d: %w", size, SectorSize, ErrFixupMismatch)
	}
	usaOfs := int(binary.LittleEndian.Uint16(b[usaOfsOffset:]))
	usaCount := int(binary.LittleEndian.Uint16(b[usaCountOffset:]))
	if usaCount != 1+size/SectorSize {
		return fmt.Errorf("mst: update sequence array count %d does not match record size %d: %w", usaCount, size, ErrFixupMismatch)
	}
	if usaOfs&1 != 0 || usaOfs < 8 || usaOfs+usaCount*2 > SectorSize-2 {
		return fmt.Errorf("mst: bad update sequence array offset %d: %w", usaOfs, ErrFixupMismatch)
	}
	usn := binary.LittleEndian.Uint16(b[usaOfs:])
	mismatch := false
	for i := 0; i < usaCount-1; i++ {
		tail := (i+1)*SectorSize - 2
		if binary.LittleEndian.Uint16(b[tail:]) != usn {
			mismatch = true
		}
		saved := binary.LittleEndian.Uint16(b[usaOfs+2+i*2:])
		binary.LittleEndian.PutUint16(b[tail:], saved)
	}
	if mismatch {
		return ErrFixupMismatch
	}
	return nil
}

// PreWriteFixup protects the record in b in place: it increments the USN
// (skipping zero, which marks a never-written record), saves the last word of
// each sector into the USA and stamps the USN over it.  The USA geometry must
// already be present in the record header.
func PreWriteFixup(b []byte) error {
	size := len(b)
	if size < SectorSize || size%SectorSize != 0 {
		return fmt.Errorf("mst: record size %d is not a multiple of %d", size, SectorSize)
	}
	usaOfs := int(binary.LittleEndian.Uint16(b[usaOfsOffset:]))
	usaCount := int(binary.LittleEndian.Uint16(b[usaCountOffset:]))
	if usaCount != 1+size/SectorSize {
		return fmt.Errorf("mst: update sequence array count %d does not match record size %d", usaCount, size)
	}
	if usaOfs&1 != 0 || usaOfs < 8 || usaOfs+usaCount*2 > SectorSize-2 {
		return fmt.Errorf("mst: bad update sequence array offset %d", usaOfs)
	}
	usn := binary.LittleEndian.Uint16(b[usaOfs:]) + 1
	if usn == 0xffff || usn == 0 {
		usn = 1
	}
	binary.LittleEndian.PutUint16(b[usaOfs:], usn)
	for i := 0; i < usaCount-1; i++ {
		tail := (i+1)*SectorSize - 2
		binary.LittleEndian.PutUint16(b[usaOfs+2+i*2:], binary.LittleEndian.Uint16(b[tail:]))
		binary.LittleEndian.PutUint16(b[tail:], usn)
	}
	return nil
}
