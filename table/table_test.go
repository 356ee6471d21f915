package table

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/t1meshift/ydb/page"
	"github.com/t1meshift/ydb/ydberr"
)

func TestCreateThenOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "round.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	major, minor := tbl.Version()
	require.Equal(t, uint8(1), major)
	require.Equal(t, uint8(0), minor)
	require.Equal(t, int64(0), tbl.Tell())
	require.NoError(t, tbl.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(0), reopened.Tell())
	require.NoError(t, reopened.Close())
}

func TestCreateTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	_, err = Create(path, Options{})
	require.True(t, errors.Is(err, ydberr.ErrTableExist))
}

func TestOpenMissingFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.tbl"), Options{})
	require.True(t, errors.Is(err, ydberr.ErrTableNotExist))
}

func TestMethodsOnZeroValueFailUninitialised(t *testing.T) {
	var tbl Table
	require.True(t, errors.Is(tbl.Next(), ydberr.ErrEngineUninitialised))
	require.True(t, errors.Is(tbl.SeekIndex(0), ydberr.ErrEngineUninitialised))
	require.True(t, errors.Is(tbl.Append(page.Allocate(PayloadSize)), ydberr.ErrEngineUninitialised))
}

func TestMethodsAfterCloseFailIdle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closed.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	require.True(t, errors.Is(tbl.Next(), ydberr.ErrEngineIdle))
	require.True(t, errors.Is(tbl.Delete(), ydberr.ErrEngineIdle))
	require.True(t, errors.Is(tbl.Append(page.Allocate(PayloadSize)), ydberr.ErrEngineIdle))
	// Close itself stays idempotent.
	require.NoError(t, tbl.Close())
}

func TestOpenDirtyTableFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dirty.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	// Create leaves the table open, so the on-disk signature is marked dirty.
	_, err = Open(path, Options{})
	require.True(t, errors.Is(err, ydberr.ErrTableDataCorrupted))
	require.NoError(t, tbl.Close())
	// A clean Close restores the marker and the table opens again.
	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, reopened.Close())
}

func TestAppendAdvancesIndexAndLinksPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "append.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	for i := 1; i <= 3; i++ {
		p := page.Allocate(PayloadSize)
		p.SetRowCount(uint16(i))
		require.NoError(t, tbl.Append(p))
		require.Equal(t, int64(i), tbl.Tell())
	}

	require.NoError(t, tbl.SeekIndex(0))
	require.Equal(t, int64(0), tbl.Tell())
	for i := 1; i <= 3; i++ {
		require.NoError(t, tbl.Next())
		require.Equal(t, uint16(i), tbl.CurrentPage().RowCount())
	}
	require.True(t, errors.Is(tbl.Next(), ydberr.ErrNoMorePages))
}

func TestReplaceRejectsCurrentPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replace.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	err = tbl.Replace(tbl.CurrentPage())
	require.True(t, errors.Is(err, ydberr.ErrSamePageAddress))

	fresh := page.Allocate(PayloadSize)
	fresh.SetRowCount(42)
	require.NoError(t, tbl.Replace(fresh))
	require.Equal(t, uint16(42), tbl.CurrentPage().RowCount())
}

func TestDeleteReusesFreedPageOnNextAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "delete.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	for i := 1; i <= 2; i++ {
		p := page.Allocate(PayloadSize)
		p.SetRowCount(uint16(i))
		require.NoError(t, tbl.Append(p))
	}
	require.Equal(t, int64(2), tbl.Tell())

	require.NoError(t, tbl.SeekIndex(1))
	require.NoError(t, tbl.Delete())
	// Deleting index 1 (the first appended page) shifts the second appended
	// page down into its slot, so the cursor lands back on index 1.
	require.Equal(t, int64(1), tbl.Tell())
	require.Equal(t, uint16(2), tbl.CurrentPage().RowCount())

	sizeBefore := fileSize(t, path)

	p := page.Allocate(PayloadSize)
	p.SetRowCount(99)
	require.NoError(t, tbl.Append(p))

	require.Equal(t, sizeBefore, fileSize(t, path))

	require.NoError(t, tbl.SeekIndex(2))
	require.Equal(t, uint16(99), tbl.CurrentPage().RowCount())
	require.True(t, errors.Is(tbl.Next(), ydberr.ErrNoMorePages))
}

func TestDeleteSolePageZeroesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sole.tbl")

	tbl, err := Create(path, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	p := page.Allocate(PayloadSize)
	p.SetRowCount(7)
	require.NoError(t, tbl.Replace(p))
	require.NoError(t, tbl.Delete())
	require.Equal(t, uint16(0), tbl.CurrentPage().RowCount())
	require.Equal(t, int64(0), tbl.Tell())
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size()
}
