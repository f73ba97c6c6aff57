package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regrid-pipeline/internal/model"
	"regrid-pipeline/pkg/utils"
)

func testDirs(t *testing.T) *utils.IntermDirs {
	t.Helper()
	dirs := utils.NewIntermDirs(t.TempDir())
	require.NoError(t, dirs.Create())
	return dirs
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestNewOrchestratorDefaults(t *testing.T) {
	o := NewOrchestrator(testDirs(t), model.TuningConfig{})
	assert.Equal(t, 5*time.Second, o.CountPoll)
	assert.Equal(t, 2*time.Second, o.QuiescePoll)
	assert.Equal(t, 120*time.Second, o.QuiesceAfter)
	assert.Equal(t, time.Duration(0), o.Timeout)
}

func TestNewOrchestratorParsesTuning(t *testing.T) {
	o := NewOrchestrator(testDirs(t), model.TuningConfig{
		CountPollInterval:   "100ms",
		QuiescePollInterval: "50ms",
		QuiesceAfter:        "1s",
		Timeout:             "2m",
	})
	assert.Equal(t, 100*time.Millisecond, o.CountPoll)
	assert.Equal(t, 50*time.Millisecond, o.QuiescePoll)
	assert.Equal(t, time.Second, o.QuiesceAfter)
	assert.Equal(t, 2*time.Minute, o.Timeout)
}

func TestCountsMatch(t *testing.T) {
	dirs := testDirs(t)
	o := NewOrchestrator(dirs, model.TuningConfig{})

	touch(t, filepath.Join(dirs.Target(), "tile_target_a.nc"))
	touch(t, filepath.Join(dirs.Target(), "tile_target_b.nc"))

	done, err := o.countsMatch()
	require.NoError(t, err)
	assert.False(t, done)

	touch(t, filepath.Join(dirs.Out(), "tile_out_a.nc"))
	touch(t, filepath.Join(dirs.Out(), "tile_out_b.nc"))

	done, err = o.countsMatch()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestLastModAgeThreshold(t *testing.T) {
	dirs := testDirs(t)
	path := filepath.Join(dirs.Out(), "tile_out_a.nc")
	touch(t, path)

	mod := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mod, mod))

	age, err := lastModAge(dirs.Out(), mod.Add(119*time.Second))
	require.NoError(t, err)
	assert.Less(t, age, 120*time.Second)

	age, err = lastModAge(dirs.Out(), mod.Add(121*time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age, 120*time.Second)
}

func TestLastModAgeUsesNewestFile(t *testing.T) {
	dirs := testDirs(t)
	old := filepath.Join(dirs.Out(), "old.nc")
	fresh := filepath.Join(dirs.Out(), "fresh.nc")
	touch(t, old)
	touch(t, fresh)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(old, base.Add(-time.Hour), base.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(fresh, base, base))

	age, err := lastModAge(dirs.Out(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, age)
}

func TestLastModAgeEmptyDirFails(t *testing.T) {
	dirs := testDirs(t)
	_, err := lastModAge(dirs.Out(), time.Now())
	assert.Error(t, err)
}

func TestWaitForOutputsSettles(t *testing.T) {
	dirs := testDirs(t)
	touch(t, filepath.Join(dirs.Target(), "tile_target_a.nc"))
	out := filepath.Join(dirs.Out(), "tile_out_a.nc")
	touch(t, out)

	mod := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(out, mod, mod))

	o := NewOrchestrator(dirs, model.TuningConfig{
		CountPollInterval:   "10ms",
		QuiescePollInterval: "10ms",
		QuiesceAfter:        "1s",
	})
	assert.NoError(t, o.WaitForOutputs(context.Background()))
}

// A missing output keeps the count-parity phase polling until the context
// expires. There is no per-job failure signal to cut it short.
func TestWaitForOutputsBlocksOnMissingOutput(t *testing.T) {
	dirs := testDirs(t)
	touch(t, filepath.Join(dirs.Target(), "tile_target_a.nc"))
	touch(t, filepath.Join(dirs.Target(), "tile_target_b.nc"))
	touch(t, filepath.Join(dirs.Out(), "tile_out_a.nc"))

	o := NewOrchestrator(dirs, model.TuningConfig{CountPollInterval: "10ms"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := o.WaitForOutputs(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForOutputsQuiescenceWaitsForSettling(t *testing.T) {
	dirs := testDirs(t)
	touch(t, filepath.Join(dirs.Target(), "tile_target_a.nc"))
	out := filepath.Join(dirs.Out(), "tile_out_a.nc")
	touch(t, out)

	// The file looks freshly written; with an injected clock just short of the
	// threshold the orchestrator must keep polling.
	mod := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(out, mod, mod))

	o := NewOrchestrator(dirs, model.TuningConfig{
		CountPollInterval:   "10ms",
		QuiescePollInterval: "10ms",
		QuiesceAfter:        "2m",
	})
	o.now = func() time.Time { return mod.Add(119 * time.Second) }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.WaitForOutputs(ctx), context.DeadlineExceeded)

	// One tick past the threshold and the same layout settles immediately.
	o.now = func() time.Time { return mod.Add(121 * time.Second) }
	assert.NoError(t, o.WaitForOutputs(context.Background()))
}

func TestDispatchRunsScriptInBashDir(t *testing.T) {
	dirs := testDirs(t)
	script := filepath.Join(dirs.Bash(), "regridding.sh")
	// The script writes its working directory so the test can check the
	// orchestrator ran it from the bash directory.
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\npwd > cwd.txt\n"), 0o755))

	o := NewOrchestrator(dirs, model.TuningConfig{})
	require.NoError(t, o.Dispatch(context.Background(), script))

	raw, err := os.ReadFile(filepath.Join(dirs.Bash(), "cwd.txt"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dirs.Bash())
	require.NoError(t, err)
	assert.Contains(t, string(raw), filepath.Base(resolved))
}

func TestDispatchFailurePropagates(t *testing.T) {
	dirs := testDirs(t)
	script := filepath.Join(dirs.Bash(), "regridding.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\nexit 3\n"), 0o755))

	o := NewOrchestrator(dirs, model.TuningConfig{})
	err := o.Dispatch(context.Background(), script)
	assert.ErrorContains(t, err, "dispatch script failed")
}
