package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntermDirsLayout(t *testing.T) {
	root := t.TempDir()
	dirs := NewIntermDirs(root)

	assert.Equal(t, filepath.Join(root, "interm"), dirs.Base)
	assert.Equal(t, filepath.Join(root, "interm", "source"), dirs.Source())
	assert.Equal(t, filepath.Join(root, "interm", "target"), dirs.Target())
	assert.Equal(t, filepath.Join(root, "interm", "out"), dirs.Out())
	assert.Equal(t, filepath.Join(root, "interm", "bash"), dirs.Bash())
	assert.Equal(t, filepath.Join(root, "interm", "bash", "logs"), dirs.Logs())
}

func TestCreateClearsLeftovers(t *testing.T) {
	dirs := NewIntermDirs(t.TempDir())
	require.NoError(t, dirs.Create())

	stale := filepath.Join(dirs.Out(), "tile_out_old.nc")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	require.NoError(t, dirs.Create())
	for _, dir := range []string{dirs.Source(), dirs.Target(), dirs.Out(), dirs.Bash(), dirs.Logs()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRemove(t *testing.T) {
	dirs := NewIntermDirs(t.TempDir())
	require.NoError(t, dirs.Create())
	require.NoError(t, dirs.Remove())

	_, err := os.Stat(dirs.Base)
	assert.True(t, os.IsNotExist(err))

	// Removing an already-removed tree is fine.
	assert.NoError(t, dirs.Remove())
}

func TestFileCount(t *testing.T) {
	dirs := NewIntermDirs(t.TempDir())
	require.NoError(t, dirs.Create())

	n, err := FileCount(dirs.Out())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, os.WriteFile(filepath.Join(dirs.Out(), "a.nc"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Out(), "b.nc"), nil, 0o644))

	n, err = FileCount(dirs.Out())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = FileCount(filepath.Join(dirs.Base, "missing"))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, 90*time.Second, ParseDuration("1m30s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
}
