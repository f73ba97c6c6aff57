package pipeline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regrid-pipeline/internal/model"
)

func TestBuildGlobalTilesCount(t *testing.T) {
	tests := []struct {
		sizeTiles int
		want      int
	}{
		{30, 6 * 12},
		{10, 18 * 36},
		{90, 2 * 4},
		{180, 1 * 2},
	}
	for _, tt := range tests {
		tiles := BuildGlobalTiles(tt.sizeTiles)
		assert.Len(t, tiles, tt.want, "sizeTiles=%d", tt.sizeTiles)
	}
}

func TestBuildGlobalTilesAlignment(t *testing.T) {
	tiles := BuildGlobalTiles(30)

	assert.Equal(t, model.TileSpec{LatMin: -90, LatMax: -60, LonMin: -180, LonMax: -150}, tiles[0])
	last := tiles[len(tiles)-1]
	assert.Equal(t, model.TileSpec{LatMin: 60, LatMax: 90, LonMin: 150, LonMax: 180}, last)

	for _, tile := range tiles {
		assert.Equal(t, 30.0, tile.LatMax-tile.LatMin)
		assert.Equal(t, 30.0, tile.LonMax-tile.LonMin)
	}
}

// Worked example: a source with cell centers inside lat [10,50], lon [-30,40]
// selects 2x3 tiles at sizeTiles=30.
func TestSelectTilesWorkedExample(t *testing.T) {
	src := model.BBox{LatMin: 10.5, LatMax: 49.5, LonMin: -29.5, LonMax: 39.5}
	selected := SelectTilesForExtent(BuildGlobalTiles(30), src)

	require.Len(t, selected, 6)
	latMins := map[float64]bool{}
	lonMins := map[float64]bool{}
	for _, tile := range selected {
		latMins[tile.LatMin] = true
		lonMins[tile.LonMin] = true
	}
	assert.Equal(t, map[float64]bool{0: true, 30: true}, latMins)
	assert.Equal(t, map[float64]bool{-30: true, 0: true, 30: true}, lonMins)
}

// A source edge exactly on a tile boundary is captured by the tiles on both
// sides of it.
func TestSelectTilesBoundaryIsInclusive(t *testing.T) {
	src := model.BBox{LatMin: 10, LatMax: 20, LonMin: -30, LonMax: -25}
	selected := SelectTilesForExtent(BuildGlobalTiles(30), src)

	lonMins := map[float64]bool{}
	for _, tile := range selected {
		lonMins[tile.LonMin] = true
	}
	assert.True(t, lonMins[-60], "tile west of the shared boundary")
	assert.True(t, lonMins[-30], "tile east of the shared boundary")
}

// Exhaustive check of the selection against the four-edge inequality.
func TestSelectTilesMatchesBruteForce(t *testing.T) {
	global := BuildGlobalTiles(30)
	rng := rand.New(rand.NewSource(7))

	for n := 0; n < 50; n++ {
		latA := -90 + 180*rng.Float64()
		latB := -90 + 180*rng.Float64()
		lonA := -180 + 360*rng.Float64()
		lonB := -180 + 360*rng.Float64()
		src := model.BBox{
			LatMin: min(latA, latB), LatMax: max(latA, latB),
			LonMin: min(lonA, lonB), LonMax: max(lonA, lonB),
		}

		selected := SelectTilesForExtent(global, src)
		inSelection := map[model.TileSpec]bool{}
		for _, tile := range selected {
			inSelection[tile] = true
		}

		for _, tile := range global {
			want := tile.LatMax >= src.LatMin && tile.LatMin <= src.LatMax &&
				tile.LonMax >= src.LonMin && tile.LonMin <= src.LonMax
			assert.Equal(t, want, inSelection[tile], "tile %v, source %v", tile, src)
		}
	}
}

func TestSelectTilesDeterministicOrder(t *testing.T) {
	src := model.BBox{LatMin: 10.5, LatMax: 49.5, LonMin: -29.5, LonMax: 39.5}
	a := SelectTilesForExtent(BuildGlobalTiles(30), src)
	b := SelectTilesForExtent(BuildGlobalTiles(30), src)
	assert.Equal(t, a, b)
}
