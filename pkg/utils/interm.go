package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// IntermDirs manages the intermediate directory tree for one regrid run. The
// tree is the coordination medium between this process and the scheduler-run
// remap jobs: slices go in, per-tile outputs come back.
type IntermDirs struct {
	Base string
}

// NewIntermDirs roots the intermediate tree under the run's output directory.
func NewIntermDirs(outDir string) *IntermDirs {
	return &IntermDirs{Base: filepath.Join(outDir, "interm")}
}

func (d *IntermDirs) Source() string { return filepath.Join(d.Base, "source") }
func (d *IntermDirs) Target() string { return filepath.Join(d.Base, "target") }
func (d *IntermDirs) Out() string    { return filepath.Join(d.Base, "out") }
func (d *IntermDirs) Bash() string   { return filepath.Join(d.Base, "bash") }
func (d *IntermDirs) Logs() string   { return filepath.Join(d.Base, "bash", "logs") }

// Create builds a fresh tree, removing any leftover from a previous run.
func (d *IntermDirs) Create() error {
	if err := os.RemoveAll(d.Base); err != nil {
		return fmt.Errorf("failed to clear intermediate directory: %w", err)
	}
	for _, dir := range []string{d.Source(), d.Target(), d.Out(), d.Logs()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create intermediate directory %s: %w", dir, err)
		}
	}
	return nil
}

// Remove deletes the whole tree. Called at the end of a run when the job asks
// for intermediate cleanup.
func (d *IntermDirs) Remove() error {
	if err := os.RemoveAll(d.Base); err != nil {
		return fmt.Errorf("failed to remove intermediate directory: %w", err)
	}
	return nil
}

// FileCount returns the number of entries in dir.
func FileCount(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return len(entries), nil
}
