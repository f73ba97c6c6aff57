// Package pipeline implements the tiled regridding pipeline: partition the
// target domain into tiles, export overlap-padded slices of both grids,
// script the external remap invocations into scheduler batches, dispatch
// them, wait on the filesystem completion heuristic, and stitch the per-tile
// outputs back into one gap-free dataset.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/grid"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/internal/store"
	"regrid-pipeline/pkg/utils"
)

// Run executes one regrid job end to end. The stages are strictly sequential;
// the only parallelism lives in the slice-export workers and, externally, in
// the scheduler running the dispatched batches.
func Run(ctx context.Context, jobID string, spec model.RegridJobSpec) (err error) {
	start := time.Now()
	log := config.Logger.With().Str("job_id", jobID).Logger()
	log.Info().Str("variable", spec.Variable).Msg("starting regrid pipeline")

	store.UpdateJobStatus(jobID, model.JobStatusRunning)
	defer func() {
		if err != nil {
			store.UpdateJobStatus(jobID, model.JobStatusFailed)
			store.SaveJobError(jobID, err)
		}
	}()

	spec.ApplyDefaults()
	if err = spec.Validate(); err != nil {
		return err
	}

	target, err := grid.Open(spec.TargetPath, "")
	if err != nil {
		return fmt.Errorf("failed to open target grid: %w", err)
	}
	source, err := grid.Open(spec.SourcePath, spec.SafeVariable())
	if err != nil {
		return fmt.Errorf("failed to open source grid: %w", err)
	}

	// The source never extends past the target: anything outside the target
	// extent has no home in the output anyway.
	source, err = source.Subset(target.BBox())
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrNoOverlap, err)
	}

	dirs := utils.NewIntermDirs(spec.OutDir)
	if err = dirs.Create(); err != nil {
		return err
	}
	if spec.DeleteInterm {
		defer func() {
			if rmErr := dirs.Remove(); rmErr != nil {
				log.Warn().Err(rmErr).Msg("failed to clean up intermediates")
			}
		}()
	}

	// --- TILING STAGE ---
	stageStart := time.Now()
	store.UpdateJobStatus(jobID, model.JobStatusTiling)
	tiles := SelectTilesForExtent(BuildGlobalTiles(spec.SizeTiles), source.BBox())
	if len(tiles) == 0 {
		return fmt.Errorf("%w: no tiles intersect the source extent", model.ErrNoOverlap)
	}
	store.SaveTiles(jobID, tiles)
	store.SaveStageProgress(jobID, "tiling", "completed", stageStart, time.Now(), len(tiles))
	log.Info().Int("tiles", len(tiles)).Msg("selected tiles for source extent")

	// --- SLICE EXPORT STAGE ---
	stageStart = time.Now()
	store.UpdateJobStatus(jobID, model.JobStatusExporting)
	jobs, err := ExportTiles(ctx, target, source, tiles, spec.Overlap, dirs, spec.Tuning.ExportWorkers)
	if err != nil {
		return fmt.Errorf("tile export failed: %w", err)
	}
	store.SaveStageProgress(jobID, "export", "completed", stageStart, time.Now(), len(jobs))

	// --- BATCH + DISPATCH STAGE ---
	stageStart = time.Now()
	store.UpdateJobStatus(jobID, model.JobStatusDispatching)
	batches := BuildBatches(jobs, spec.Tuning.BatchSize)
	batches, dispatchScript, err := WriteScripts(batches, spec.Scheduler, dirs)
	if err != nil {
		return err
	}
	log.Info().Int("batches", len(batches)).Msg("wrote batch and dispatch scripts")
	store.SaveStageProgress(jobID, "batch", "completed", stageStart, time.Now(), len(batches))

	// --- ORCHESTRATION STAGE ---
	stageStart = time.Now()
	store.UpdateJobStatus(jobID, model.JobStatusWaiting)
	orch := NewOrchestrator(dirs, spec.Tuning)
	if err = orch.Run(ctx, dispatchScript); err != nil {
		store.SaveStageProgress(jobID, "orchestrate", "failed", stageStart, time.Now(), 0)
		return fmt.Errorf("orchestration failed: %w", err)
	}
	store.SaveStageProgress(jobID, "orchestrate", "completed", stageStart, time.Now(), len(batches))

	// --- AGGREGATION STAGE ---
	stageStart = time.Now()
	store.UpdateJobStatus(jobID, model.JobStatusAggregating)
	outPath, failedTiles, err := Aggregate(jobs, target, source.DType, spec, dirs)
	for _, t := range failedTiles {
		store.UpdateTileStatus(jobID, t, model.TileStatusFailed)
	}
	for _, job := range jobs {
		if !containsTile(failedTiles, job.Tile) {
			store.UpdateTileStatus(jobID, job.Tile, model.TileStatusSucceeded)
		}
	}
	if err != nil {
		store.SaveStageProgress(jobID, "aggregate", "failed", stageStart, time.Now(), 0)
		return fmt.Errorf("aggregation failed: %w", err)
	}
	store.SaveStageProgress(jobID, "aggregate", "completed", stageStart, time.Now(), len(jobs)-len(failedTiles))

	store.UpdateJobStatus(jobID, model.JobStatusCompleted)
	log.Info().Str("output", outPath).Dur("elapsed", time.Since(start)).
		Msg("regrid pipeline completed")
	return nil
}

func containsTile(tiles []model.TileSpec, t model.TileSpec) bool {
	for _, c := range tiles {
		if c == t {
			return true
		}
	}
	return false
}

// IsConfigError reports whether err belongs to the configuration error class,
// which the API maps to a 400 instead of a 500.
func IsConfigError(err error) bool {
	return errors.Is(err, model.ErrBadTileSize) ||
		errors.Is(err, model.ErrUnsupportedFormat) ||
		errors.Is(err, model.ErrNoOverlap)
}
