package logfile

import "go.uber.org/zap"

// IsClean reports whether the journal says the volume was shut down cleanly.
//
// The journal must have been consistency checked first: rp is the page
// returned by Check, and a journal Check found empty is clean by definition.
// Calling IsClean without a restart page on a non-empty journal, or with a
// buffer that is not a restart page, is a contract violation and panics.
func (j *Journal) IsClean(rp *RestartPage) bool {
	// An empty journal must have been clean before it got emptied.
	if j.KnownEmpty() {
		return true
	}
	if rp == nil {
		panic("logfile: cleanliness check without a restart page on a non-empty journal")
	}
	h := rp.header()
	if h.Magic != MagicRSTR && h.Magic != MagicCHKD {
		panic("logfile: cleanliness check on a buffer that is not a restart page")
	}
	// The volume is dirty exactly when the journal has open clients and
	// the clean shutdown flag is not set.
	ra := rp.area()
	if ra.ClientInUseList != NoClient && ra.Flags&VolumeIsClean == 0 {
		j.logger.Debug("journal indicates a dirty shutdown")
		return false
	}
	return true
}

// Empty overwrites the journal's whole logical extent with the empty fill
// pattern and records that the journal is now empty.  It assumes the
// journal was checked and found clean.  Write failures propagate unchanged
// and leave the cached state untouched.
func (j *Journal) Empty() error {
	if j.KnownEmpty() {
		return nil
	}
	j.lock.RLock()
	defer j.lock.RUnlock()

	size := j.attr.Size()
	if err := j.attr.Fill(0, size, EmptyFillByte); err != nil {
		j.logger.Error("failed to empty journal", zap.Int64("size", size), zap.Error(err))
		return err
	}
	j.markEmpty()
	j.logger.Info("journal emptied", zap.Int64("size", size))
	return nil
}
