package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regrid-pipeline/internal/model"
)

// testGrid builds a lat-descending grid covering the given bounds at 1-degree
// cell centers, with value = 1000*lat + lon so cells are identifiable.
func testGrid(t *testing.T, latMin, latMax, lonMin, lonMax float64) *Grid {
	t.Helper()
	var lat, lon []float64
	for v := latMax - 0.5; v > latMin; v-- {
		lat = append(lat, v)
	}
	for v := lonMin + 0.5; v < lonMax; v++ {
		lon = append(lon, v)
	}
	values := make([]float64, len(lat)*len(lon))
	for i, la := range lat {
		for j, lo := range lon {
			values[i*len(lon)+j] = 1000*la + lo
		}
	}
	g, err := New("test_var", lat, lon, values, DTypeFloat64)
	require.NoError(t, err)
	return g
}

func TestNewRejectsBadAxes(t *testing.T) {
	_, err := New("v", []float64{1, 2}, []float64{0, 1}, make([]float64, 4), DTypeFloat64)
	assert.Error(t, err, "ascending lat must be rejected")

	_, err = New("v", []float64{2, 1}, []float64{1, 0}, make([]float64, 4), DTypeFloat64)
	assert.Error(t, err, "descending lon must be rejected")

	_, err = New("v", []float64{2, 1}, []float64{0, 1}, make([]float64, 3), DTypeFloat64)
	assert.Error(t, err, "value count must match shape")

	_, err = New("v", []float64{2, 1}, []float64{0, 1}, make([]float64, 4), "complex128")
	assert.Error(t, err, "unknown dtype must be rejected")
}

func TestBBox(t *testing.T) {
	g := testGrid(t, 10, 50, -30, 40)
	assert.Equal(t, model.BBox{LatMin: 10.5, LatMax: 49.5, LonMin: -29.5, LonMax: 39.5}, g.BBox())
}

func TestSubsetInclusiveWindow(t *testing.T) {
	g := testGrid(t, 0, 30, 0, 30)

	sub, err := g.Subset(model.BBox{LatMin: 9.5, LatMax: 20.5, LonMin: 4.5, LonMax: 10.5})
	require.NoError(t, err)

	// Inclusive on all edges.
	assert.Equal(t, 20.5, sub.Lat[0])
	assert.Equal(t, 9.5, sub.Lat[len(sub.Lat)-1])
	assert.Equal(t, 4.5, sub.Lon[0])
	assert.Equal(t, 10.5, sub.Lon[len(sub.Lon)-1])

	// Values travel with their coordinates.
	assert.Equal(t, 1000*20.5+4.5, sub.At(0, 0))
}

func TestSubsetOutsideCoverageFails(t *testing.T) {
	g := testGrid(t, 0, 30, 0, 30)
	_, err := g.Subset(model.BBox{LatMin: 50, LatMax: 60, LonMin: 0, LonMax: 10})
	assert.Error(t, err)
}

func TestNormalizeFlipsAscendingLat(t *testing.T) {
	g := &Grid{
		Name:   "v",
		Lat:    []float64{10, 20, 30},
		Lon:    []float64{0, 1},
		Values: []float64{1, 2, 3, 4, 5, 6},
		DType:  DTypeFloat64,
		Attrs:  map[string]string{"units": "1"},
	}
	flipped, err := Normalize(g)
	require.NoError(t, err)

	assert.Equal(t, []float64{30, 20, 10}, flipped.Lat)
	assert.Equal(t, []float64{5, 6, 3, 4, 1, 2}, flipped.Values)
	assert.Equal(t, "1", flipped.Attrs["units"])

	// Already-descending grids pass through untouched.
	same, err := Normalize(flipped)
	require.NoError(t, err)
	assert.Equal(t, flipped, same)
}

func TestCastValue(t *testing.T) {
	assert.Equal(t, 3.0, CastValue(2.6, DTypeInt16))
	assert.Equal(t, -3.0, CastValue(-2.6, DTypeInt32))
	assert.Equal(t, float64(float32(0.1)), CastValue(0.1, DTypeFloat32))
	assert.Equal(t, 0.1, CastValue(0.1, DTypeFloat64))
	assert.True(t, math.IsNaN(CastValue(math.NaN(), DTypeFloat32)))
}

func TestCountMissing(t *testing.T) {
	g := testGrid(t, 0, 2, 0, 2)
	assert.Equal(t, 0, g.CountMissing())
	g.Set(0, 0, math.NaN())
	assert.Equal(t, 1, g.CountMissing())
}
