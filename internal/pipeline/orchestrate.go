package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/pkg/utils"
)

// Orchestrator launches the dispatch script and decides when the remap jobs
// are done. It never sees scheduler job ids or exit codes; the output
// directory is its only window into the work, so completion is a two-phase
// filesystem heuristic:
//
//  1. count parity: the output directory holds as many files as the target
//     slice directory;
//  2. quiescence: the newest output file has not been touched for QuiesceAfter.
//
// A tile job that never writes its output keeps phase 1 looping forever
// (bounded only by Timeout, when one is set). That blindness is inherent to
// the design: there is nothing to observe but files.
type Orchestrator struct {
	Dirs         *utils.IntermDirs
	CountPoll    time.Duration
	QuiescePoll  time.Duration
	QuiesceAfter time.Duration
	Timeout      time.Duration

	now func() time.Time
}

// NewOrchestrator builds an orchestrator from the job's tuning policy.
func NewOrchestrator(dirs *utils.IntermDirs, tuning model.TuningConfig) *Orchestrator {
	return &Orchestrator{
		Dirs:         dirs,
		CountPoll:    utils.ParseDuration(tuning.CountPollInterval, 5*time.Second),
		QuiescePoll:  utils.ParseDuration(tuning.QuiescePollInterval, 2*time.Second),
		QuiesceAfter: utils.ParseDuration(tuning.QuiesceAfter, 120*time.Second),
		Timeout:      utils.ParseDuration(tuning.Timeout, 0),
		now:          time.Now,
	}
}

// Run dispatches the batches and blocks until the completion heuristic passes.
func (o *Orchestrator) Run(ctx context.Context, dispatchScript string) error {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	if err := o.Dispatch(ctx, dispatchScript); err != nil {
		return err
	}
	return o.WaitForOutputs(ctx)
}

// Dispatch runs the dispatch script and waits for it to exit. Because only the
// last batch is submitted in the foreground, a clean exit proves only that the
// last batch finished; the other batches are still in flight.
func (o *Orchestrator) Dispatch(ctx context.Context, dispatchScript string) error {
	cmd := exec.CommandContext(ctx, "bash", filepath.Base(dispatchScript))
	// The generated scripts use paths relative to the bash directory.
	cmd.Dir = filepath.Dir(dispatchScript)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	config.Logger.Info().Str("script", dispatchScript).Msg("dispatching batch jobs")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dispatch script failed: %w", err)
	}
	return nil
}

// WaitForOutputs blocks through the two heuristic phases.
func (o *Orchestrator) WaitForOutputs(ctx context.Context) error {
	// Phase 1: one output file per exported target slice.
	for {
		done, err := o.countsMatch()
		if err != nil {
			return err
		}
		if done {
			break
		}
		if err := sleepCtx(ctx, o.CountPoll); err != nil {
			return fmt.Errorf("waiting for output count parity: %w", err)
		}
	}
	config.Logger.Info().Msg("output count matches tile count, waiting for writes to settle")

	// Phase 2: no write activity for QuiesceAfter.
	for {
		age, err := lastModAge(o.Dirs.Out(), o.now())
		if err != nil {
			return err
		}
		if age >= o.QuiesceAfter {
			return nil
		}
		if err := sleepCtx(ctx, o.QuiescePoll); err != nil {
			return fmt.Errorf("waiting for output quiescence: %w", err)
		}
	}
}

func (o *Orchestrator) countsMatch() (bool, error) {
	expected, err := utils.FileCount(o.Dirs.Target())
	if err != nil {
		return false, err
	}
	produced, err := utils.FileCount(o.Dirs.Out())
	if err != nil {
		return false, err
	}
	config.Logger.Debug().Int("expected", expected).Int("produced", produced).
		Msg("polling output directory")
	return produced == expected, nil
}

// lastModAge returns how long ago the newest file in dir was modified.
func lastModAge(dir string, now time.Time) (time.Duration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no output files in %s", dir)
	}
	var newest time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return now.Sub(newest), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
