package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"regrid-pipeline/internal/model"
	"regrid-pipeline/pkg/utils"
)

// BuildBatches partitions the tile jobs, in their original deterministic
// order, into consecutive groups of batchSize. The last batch may be smaller.
// Each batch becomes one scheduler job; tiles within a batch run sequentially.
func BuildBatches(jobs []model.TileJob, batchSize int) []model.JobBatch {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches []model.JobBatch
	for start := 0; start < len(jobs); start += batchSize {
		end := min(start+batchSize, len(jobs))
		batches = append(batches, model.JobBatch{
			Index: len(batches),
			Jobs:  jobs[start:end],
		})
	}
	return batches
}

// RenderBatchScript renders the scheduler job script for one batch: the
// resource directives header, then one remap invocation per tile with the
// three positional file arguments (target slice, source slice, output).
func RenderBatchScript(batch model.JobBatch, sched model.SchedulerConfig, intermDir string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("#SBATCH --job-name=regrid\n")
	fmt.Fprintf(&b, "#SBATCH --partition=%s\n", sched.Partition)
	fmt.Fprintf(&b, "#SBATCH --ntasks=%d\n", sched.Tasks)
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", sched.WallTime)
	b.WriteString("#SBATCH --mail-type=FAIL\n")
	fmt.Fprintf(&b, "#SBATCH --account=%s\n", sched.Account)
	b.WriteString("#SBATCH --output=logs/regrid.o%j\n")
	b.WriteString("#SBATCH --error=logs/regrid.e%j\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "cd %s\n", intermDir)
	if sched.ModuleCmd != "" {
		fmt.Fprintf(&b, "module load %s\n", sched.ModuleCmd)
	}
	for _, job := range batch.Jobs {
		fmt.Fprintf(&b, "%s -P %d %s,%s %s %s\n",
			sched.RemapCmd, sched.Tasks, sched.RemapOp,
			job.TargetPath, job.SourcePath, job.OutputPath)
	}
	return b.String()
}

// RenderDispatchScript renders the top-level script that submits every batch
// script to the scheduler. All but the last submission are backgrounded and
// non-blocking; the last one blocks until its scheduler job exits. That makes
// the last-submitted batch a synchronization barrier: when this script
// returns, the last batch is done, but nothing is guaranteed about the others.
// The orchestrator's polling covers the rest.
func RenderDispatchScript(batches []model.JobBatch) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n\n")
	for i, batch := range batches {
		if i < len(batches)-1 {
			fmt.Fprintf(&b, "sbatch -Q -W %s &\n", batch.ScriptPath)
		} else {
			fmt.Fprintf(&b, "sbatch -Q -W %s\n", batch.ScriptPath)
		}
	}
	return b.String()
}

// WriteScripts persists the batch scripts and the dispatch script under the
// bash directory, all executable, and returns the dispatch script path
// together with the batches annotated with their script locations.
func WriteScripts(batches []model.JobBatch, sched model.SchedulerConfig,
	dirs *utils.IntermDirs) ([]model.JobBatch, string, error) {

	for i := range batches {
		batches[i].ScriptPath = filepath.Join(dirs.Bash(), fmt.Sprintf("regridding_sub_%d.sh", i))
		script := RenderBatchScript(batches[i], sched, dirs.Base)
		if err := os.WriteFile(batches[i].ScriptPath, []byte(script), 0o755); err != nil {
			return nil, "", fmt.Errorf("failed to write batch script: %w", err)
		}
	}

	dispatchPath := filepath.Join(dirs.Bash(), "regridding.sh")
	if err := os.WriteFile(dispatchPath, []byte(RenderDispatchScript(batches)), 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to write dispatch script: %w", err)
	}
	return batches, dispatchPath, nil
}
