package logfile

import "errors"

// --- Error Definitions ---
//
// Every failure of the journal code maps onto one of these three recoverable
// kinds; callers match with errors.Is.  Internal invariant breaches (a caller
// using the API out of contract) are not errors but panics.

var (
	// ErrInvalidLogFile means the journal's on-disk structures violated a
	// format rule: the volume needs external repair tooling before it can
	// be trusted.
	ErrInvalidLogFile = errors.New("logfile: journal is corrupt or unsupported")
	// ErrIO means the backing storage failed while reading or writing the
	// journal.
	ErrIO = errors.New("logfile: i/o error")
	// ErrNoMemory means a buffer or page frame could not be obtained.
	ErrNoMemory = errors.New("logfile: out of memory")
)
