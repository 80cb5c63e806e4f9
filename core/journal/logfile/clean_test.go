package logfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// dirtyRestartPage builds a page whose only client is still open.
func dirtyRestartPage(t *testing.T) []byte {
	t.Helper()
	page := validRestartPage(t, testPageSize)
	putArea16(page, areaFreeList, NoClient)
	putArea16(page, areaInUseList, 0)
	return page
}

func TestIsCleanNoOpenClients(t *testing.T) {
	page := validRestartPage(t, testPageSize)
	j, _ := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, page)}))

	rp, err := j.Check()
	require.NoError(t, err)
	require.True(t, j.IsClean(rp))
}

func TestIsCleanOpenClientDirty(t *testing.T) {
	j, _ := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, dirtyRestartPage(t))}))

	rp, err := j.Check()
	require.NoError(t, err)
	require.False(t, j.IsClean(rp))
}

func TestIsCleanShutdownFlagOverridesOpenClient(t *testing.T) {
	page := dirtyRestartPage(t)
	putArea16(page, areaFlags, VolumeIsClean)
	j, _ := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, page)}))

	rp, err := j.Check()
	require.NoError(t, err)
	require.True(t, j.IsClean(rp))
}

func TestIsCleanContractViolations(t *testing.T) {
	j, _ := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, validRestartPage(t, testPageSize))}))

	require.Panics(t, func() { j.IsClean(nil) })
	require.Panics(t, func() {
		j.IsClean(&RestartPage{data: make([]byte, testPageSize)})
	})
}

func TestEmptyOverwritesJournal(t *testing.T) {
	j, m := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, validRestartPage(t, testPageSize))}))

	require.NoError(t, j.Empty())
	require.True(t, j.KnownEmpty())
	for i, b := range m.data {
		require.Equal(t, EmptyFillByte, b, "offset %d", i)
	}

	// A later scan trusts the cached determination.
	reads := m.reads
	rp, err := j.Check()
	require.NoError(t, err)
	require.Nil(t, rp)
	require.Equal(t, reads, m.reads)
}

func TestEmptyIsIdempotent(t *testing.T) {
	j, m := setupJournal(t, journalBytes(t, nil))
	require.NoError(t, j.Empty())
	m.failFill = errors.New("read-only device")
	// Already empty, so no further writes happen.
	require.NoError(t, j.Empty())
}

func TestEmptyWriteFailure(t *testing.T) {
	j, m := setupJournal(t, journalBytes(t, map[int64][]byte{0: protect(t, validRestartPage(t, testPageSize))}))
	fail := errors.New("write error")
	m.failFill = fail

	require.ErrorIs(t, j.Empty(), fail)
	require.False(t, j.KnownEmpty())
}
