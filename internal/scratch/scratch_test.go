package scratch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLifecycle(t *testing.T) {
	base := t.TempDir()
	d, err := Acquire(base, "abc")
	require.NoError(t, err)
	assert.DirExists(t, d.Root())

	p, err := d.File("c/geo_points/7/2023-01-01T09:00:00Z.parquet")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, d.Remove(p))
	assert.NoFileExists(t, p)
	require.NoError(t, d.Remove(p))

	_, err = d.File("left/behind.json")
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.NoDirExists(t, d.Root())
	assert.DirExists(t, base)
}

func TestDirsAreIsolated(t *testing.T) {
	base := t.TempDir()
	a, err := Acquire(base, "same")
	require.NoError(t, err)
	defer a.Close()
	b, err := Acquire(base, "same")
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, a.Root(), b.Root())
}

func TestFileRejectsEscape(t *testing.T) {
	d, err := Acquire(t.TempDir(), "x")
	require.NoError(t, err)
	defer d.Close()
	_, err = d.File("../outside")
	assert.Error(t, err)
}
