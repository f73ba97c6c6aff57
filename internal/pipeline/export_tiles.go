package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/grid"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/pkg/utils"
)

// tileJobFor derives the three file paths a tile's remap invocation needs.
// Paths are relative to the intermediate directory so the generated scripts
// can cd there and stay short. The filename is a write-only artifact; tile
// identity keeps travelling as the TileSpec inside the job.
func tileJobFor(tile model.TileSpec) model.TileJob {
	key := tile.FileKey()
	return model.TileJob{
		Tile:       tile,
		TargetPath: filepath.Join("target", "tile_target_"+key+".nc"),
		SourcePath: filepath.Join("source", "tile_source_"+key+".nc"),
		OutputPath: filepath.Join("out", "tile_out_"+key+".nc"),
	}
}

// ExportTiles carves the overlap-padded window for every selected tile out of
// both grids and persists the paired slices under the intermediate tree.
// Slices are written concurrently by up to workers goroutines; any failure
// aborts the whole stage. A tile whose padded window holds no cells in either
// grid is an error: selection should have excluded it.
func ExportTiles(ctx context.Context, target, source *grid.Grid, tiles []model.TileSpec,
	olap float64, dirs *utils.IntermDirs, workers int) ([]model.TileJob, error) {

	if workers < 1 {
		workers = 1
	}

	jobs := make([]model.TileJob, len(tiles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, tile := range tiles {
		jobs[i] = tileJobFor(tile)
		job := jobs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := exportSlice(target, job.Tile, olap, filepath.Join(dirs.Base, job.TargetPath)); err != nil {
				return fmt.Errorf("target slice for %s: %w", job.Tile, err)
			}
			if err := exportSlice(source, job.Tile, olap, filepath.Join(dirs.Base, job.SourcePath)); err != nil {
				return fmt.Errorf("source slice for %s: %w", job.Tile, err)
			}
			config.Logger.Debug().Stringer("tile", job.Tile).Msg("exported tile slices")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func exportSlice(g *grid.Grid, tile model.TileSpec, olap float64, path string) error {
	sub, err := g.Subset(tile.Padded(olap))
	if err != nil {
		return err
	}
	return grid.WriteNetCDF(sub, path)
}
