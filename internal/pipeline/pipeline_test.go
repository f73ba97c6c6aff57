package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regrid-pipeline/internal/grid"
	"regrid-pipeline/internal/model"
)

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(model.ErrBadTileSize))
	assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", model.ErrNoOverlap)))
	assert.True(t, IsConfigError(model.ErrUnsupportedFormat))
	assert.False(t, IsConfigError(errors.New("dispatch script failed")))
	assert.False(t, IsConfigError(nil))
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	spec := model.RegridJobSpec{Variable: "v", OutDir: t.TempDir(), ExportFormat: "geotiff"}
	err := Run(context.Background(), "job-1", spec)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestRunRejectsDisjointGrids(t *testing.T) {
	dir := t.TempDir()
	target := gridOver(t, "tgt", []float64{49.5, 48.5}, []float64{0.5, 1.5})
	source := gridOver(t, "v", []float64{-40.5, -41.5}, []float64{100.5, 101.5})

	targetPath := filepath.Join(dir, "target.nc")
	sourcePath := filepath.Join(dir, "source.nc")
	require.NoError(t, grid.WriteNetCDF(target, targetPath))
	require.NoError(t, grid.WriteNetCDF(source, sourcePath))

	spec := model.RegridJobSpec{
		Variable:   "v",
		OutDir:     dir,
		TargetPath: targetPath,
		SourcePath: sourcePath,
	}
	err := Run(context.Background(), "job-1", spec)
	require.ErrorIs(t, err, model.ErrNoOverlap)
	assert.True(t, IsConfigError(err))
}
