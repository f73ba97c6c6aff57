package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/grid"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/pkg/utils"
)

// valueEps is the tolerance for the no-conflicts merge check: adjacent tiles
// derive shared coordinates from the same source grid, so any real divergence
// is a bug upstream, not rounding noise.
const valueEps = 1e-12

// ParseTileBounds recovers the tile bounds embedded in an output filename,
// e.g. "tile_out_0_30_-30_0.nc". The filename stays the contract for anything
// that only has the file, even though within the pipeline the TileSpec itself
// travels with each job.
func ParseTileBounds(filename string) (model.TileSpec, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return model.ParseFileKey(base)
}

// LoadAndCropTile opens one remap output, crops the overlap back off using the
// bounds carried in the filename (inclusive on the tile's own edges), and
// discards any coordinate-reference metadata the remap tool attached.
func LoadAndCropTile(path string) (*grid.Grid, error) {
	tile, err := ParseTileBounds(path)
	if err != nil {
		return nil, err
	}
	g, err := grid.Open(path, "")
	if err != nil {
		return nil, err
	}
	cropped, err := g.Subset(tile.BBox())
	if err != nil {
		return nil, fmt.Errorf("crop %s: %w", tile, err)
	}
	delete(cropped.Attrs, "spatial_ref")
	delete(cropped.Attrs, "grid_mapping")
	return cropped, nil
}

type coordKey int64

func keyOf(v float64) coordKey { return coordKey(math.Round(v * 1e9)) }

// CombineTiles unions the cropped tiles by coordinate value and reindexes the
// result onto the exact coordinate vectors of the target grid. The merge
// policy is "no conflicts": two tiles claiming different values for the same
// cell is an error. Duplicate coordinates from the inclusive tile selection
// collapse naturally under coordinate keying. Target cells covered by no tile
// become missing values, whether the coverage gap is legitimate or a tile job
// silently failed; the two are indistinguishable here.
func CombineTiles(tiles []*grid.Grid, target *grid.Grid, varName string) (*grid.Grid, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles to combine")
	}

	type cell struct{ lat, lon coordKey }
	merged := make(map[cell]float64)
	for _, t := range tiles {
		for i, lat := range t.Lat {
			for j, lon := range t.Lon {
				v := t.At(i, j)
				if math.IsNaN(v) {
					continue
				}
				c := cell{keyOf(lat), keyOf(lon)}
				if prev, ok := merged[c]; ok && math.Abs(prev-v) > valueEps {
					return nil, fmt.Errorf("merge conflict at lat=%g lon=%g: %g vs %g",
						lat, lon, prev, v)
				}
				merged[c] = v
			}
		}
	}

	name := "regridded_" + varName
	values := make([]float64, len(target.Lat)*len(target.Lon))
	missing := 0
	for i, lat := range target.Lat {
		for j, lon := range target.Lon {
			if v, ok := merged[cell{keyOf(lat), keyOf(lon)}]; ok {
				values[i*len(target.Lon)+j] = v
			} else {
				values[i*len(target.Lon)+j] = math.NaN()
				missing++
			}
		}
	}
	config.Logger.Info().Int("tiles", len(tiles)).Int("uncovered_cells", missing).
		Msg("combined tiles onto target coordinates")

	out, err := grid.New(name, target.Lat, target.Lon, values, tiles[0].DType)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	return out, nil
}

// Finalize replaces every missing value with fillValue, casts the field back
// to the source variable's dtype, and records the fill value as metadata so
// downstream consumers can recognize no-data cells. Running it again on its
// own output is a no-op.
func Finalize(g *grid.Grid, fillValue float64, dtype string) *grid.Grid {
	fill := grid.CastValue(fillValue, dtype)
	values := make([]float64, len(g.Values))
	for i, v := range g.Values {
		if math.IsNaN(v) {
			values[i] = fill
		} else {
			values[i] = grid.CastValue(v, dtype)
		}
	}
	out := &grid.Grid{Name: g.Name, Lat: g.Lat, Lon: g.Lon, Values: values,
		DType: dtype, Attrs: map[string]string{}}
	for k, v := range g.Attrs {
		out.Attrs[k] = v
	}
	out.Attrs["_FillValue"] = strconv.FormatFloat(fill, 'g', -1, 64)
	return out
}

// ExportRegridded writes the final dataset in the configured format and
// returns the written path.
func ExportRegridded(g *grid.Grid, format, outDir string) (string, error) {
	switch format {
	case model.ExportZarr:
		path := filepath.Join(outDir, g.Name+".zarr")
		return path, grid.WriteZarr(g, path)
	case model.ExportRaster:
		path := filepath.Join(outDir, g.Name+".asc")
		return path, grid.WriteArcASCII(g, path)
	case model.ExportNetCDF:
		path := filepath.Join(outDir, g.Name+".nc")
		return path, grid.WriteNetCDF(g, path)
	}
	return "", fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, format)
}

// Aggregate loads each tile job's output, crops and stitches them, fills the
// gaps, and exports the final dataset. Jobs whose output file is missing or
// unreadable are reported back as failed tiles and otherwise skipped: after
// reindexing, their cells are filled like any uncovered region. Partial
// failures never abort the aggregation.
func Aggregate(jobs []model.TileJob, target *grid.Grid, sourceDType string,
	spec model.RegridJobSpec, dirs *utils.IntermDirs) (string, []model.TileSpec, error) {

	var tiles []*grid.Grid
	var failed []model.TileSpec
	for _, job := range jobs {
		path := filepath.Join(dirs.Base, job.OutputPath)
		if _, err := os.Stat(path); err != nil {
			config.Logger.Warn().Stringer("tile", job.Tile).
				Msg("tile output missing, cells will be filled")
			failed = append(failed, job.Tile)
			continue
		}
		cropped, err := LoadAndCropTile(path)
		if err != nil {
			config.Logger.Warn().Stringer("tile", job.Tile).Err(err).
				Msg("tile output unreadable, cells will be filled")
			failed = append(failed, job.Tile)
			continue
		}
		tiles = append(tiles, cropped)
	}

	combined, err := CombineTiles(tiles, target, spec.SafeVariable())
	if err != nil {
		return "", failed, err
	}
	final := Finalize(combined, spec.FillValue, sourceDType)

	path, err := ExportRegridded(final, spec.ExportFormat, spec.OutDir)
	if err != nil {
		return "", failed, err
	}
	return path, failed, nil
}
