package pipeline

import (
	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/model"
)

// BuildGlobalTiles partitions the full lat/lon domain into sizeTiles-degree
// tiles aligned to lat=-90, lon=-180. When sizeTiles does not evenly divide
// 180 and 360 the trailing tiles overshoot the domain edge; that is a known
// limitation of the partitioning and only warned about, never corrected.
func BuildGlobalTiles(sizeTiles int) []model.TileSpec {
	if 180%sizeTiles != 0 || 360%sizeTiles != 0 {
		config.Logger.Warn().Int("size_tiles", sizeTiles).
			Msg("tile size does not evenly divide the global domain; edge tiles will be irregular")
	}

	var tiles []model.TileSpec
	for lat := -90; lat < 90; lat += sizeTiles {
		for lon := -180; lon < 180; lon += sizeTiles {
			tiles = append(tiles, model.TileSpec{
				LatMin: float64(lat),
				LatMax: float64(lat + sizeTiles),
				LonMin: float64(lon),
				LonMax: float64(lon + sizeTiles),
			})
		}
	}
	return tiles
}

// SelectTilesForExtent keeps the tiles whose bounds intersect the source
// bounding box. The test is inclusive at boundaries, so a source edge lying
// exactly on a tile boundary selects the tiles on both sides; the duplicate
// coordinates that produces are dropped again during aggregation. No
// antimeridian wraparound: tiles never wrap across lon=±180 or merge at the
// poles.
func SelectTilesForExtent(globalTiles []model.TileSpec, sourceBBox model.BBox) []model.TileSpec {
	var selected []model.TileSpec
	for _, t := range globalTiles {
		if t.Touches(sourceBBox) {
			selected = append(selected, t)
		}
	}
	return selected
}
