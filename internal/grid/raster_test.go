package grid

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteArcASCII(t *testing.T) {
	g, err := New("regridded_v",
		[]float64{1.5, 0.5},
		[]float64{10.5, 11.5, 12.5},
		[]float64{1, 2, math.NaN(), 4, 5, 6},
		DTypeFloat64)
	require.NoError(t, err)
	g.Attrs["_FillValue"] = "-9999"

	path := filepath.Join(t.TempDir(), "out.asc")
	require.NoError(t, WriteArcASCII(g, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 8)

	assert.Equal(t, "ncols 3", lines[0])
	assert.Equal(t, "nrows 2", lines[1])
	assert.Equal(t, "xllcorner 10", lines[2])
	assert.Equal(t, "yllcorner 0", lines[3])
	assert.Equal(t, "cellsize 1", lines[4])
	assert.Equal(t, "NODATA_value -9999", lines[5])

	// North row first; NaN renders as the nodata marker.
	assert.Equal(t, "1 2 -9999", lines[6])
	assert.Equal(t, "4 5 6", lines[7])
}

func TestWriteArcASCIIRejectsNonSquareCells(t *testing.T) {
	g, err := New("v",
		[]float64{2, 0},
		[]float64{0, 1, 2},
		make([]float64, 6),
		DTypeFloat64)
	require.NoError(t, err)

	err = WriteArcASCII(g, filepath.Join(t.TempDir(), "out.asc"))
	assert.Error(t, err)
}
