package model

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors surfaced before any work is dispatched.
var (
	ErrBadTileSize       = errors.New("tile size must be a positive number of degrees")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNoOverlap         = errors.New("source and target grids do not overlap")
)

// Export formats understood by the aggregation stage.
const (
	ExportZarr   = "zarr"   // chunked array store (zarr v2 directory layout)
	ExportRaster = "raster" // single-band ESRI ASCII grid
	ExportNetCDF = "netcdf" // self-describing NetCDF classic file
)

// SchedulerConfig is passed through opaquely into the generated batch scripts.
type SchedulerConfig struct {
	Account   string `json:"account" yaml:"account"`
	Partition string `json:"partition" yaml:"partition"`
	Tasks     int    `json:"tasks" yaml:"tasks"`          // worker threads per remap invocation
	WallTime  string `json:"wall_time" yaml:"wall_time"`  // e.g. "00:15:00"
	RemapCmd  string `json:"remap_cmd" yaml:"remap_cmd"`  // external remap tool
	RemapOp   string `json:"remap_op" yaml:"remap_op"`    // conservative remap operator
	ModuleCmd string `json:"module_cmd" yaml:"module_cmd"` // environment module to load, empty to skip
}

// TuningConfig holds the scheduling-policy knobs. Durations are strings like
// "5s" so job files stay human-editable; an empty Timeout means the completion
// wait can block indefinitely.
type TuningConfig struct {
	BatchSize           int    `json:"batch_size" yaml:"batch_size"`
	ExportWorkers       int    `json:"export_workers" yaml:"export_workers"`
	CountPollInterval   string `json:"count_poll_interval" yaml:"count_poll_interval"`
	QuiescePollInterval string `json:"quiesce_poll_interval" yaml:"quiesce_poll_interval"`
	QuiesceAfter        string `json:"quiesce_after" yaml:"quiesce_after"`
	Timeout             string `json:"timeout" yaml:"timeout"`
}

// RegridJobSpec is the full configuration for one regrid run, submitted as
// JSON to the API or loaded from a YAML job file by the CLI.
type RegridJobSpec struct {
	Variable     string          `json:"variable" yaml:"variable"`
	SourcePath   string          `json:"source_path" yaml:"source_path"`
	TargetPath   string          `json:"target_path" yaml:"target_path"`
	OutDir       string          `json:"out_dir" yaml:"out_dir"`
	SizeTiles    int             `json:"size_tiles" yaml:"size_tiles"`
	Overlap      float64         `json:"overlap" yaml:"overlap"`
	FillValue    float64         `json:"fill_value" yaml:"fill_value"`
	ExportFormat string          `json:"export_format" yaml:"export_format"`
	DeleteInterm bool            `json:"delete_interm" yaml:"delete_interm"`
	Scheduler    SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Tuning       TuningConfig    `json:"tuning" yaml:"tuning"`
}

// ApplyDefaults fills in the standard tuning and scheduler values for a
// conservative CDO remap run.
func (s *RegridJobSpec) ApplyDefaults() {
	if s.SizeTiles == 0 {
		s.SizeTiles = 30
	}
	if s.ExportFormat == "" {
		s.ExportFormat = ExportNetCDF
	}
	if s.Scheduler.Tasks == 0 {
		s.Scheduler.Tasks = 12
	}
	if s.Scheduler.WallTime == "" {
		s.Scheduler.WallTime = "00:15:00"
	}
	if s.Scheduler.RemapCmd == "" {
		s.Scheduler.RemapCmd = "cdo"
	}
	if s.Scheduler.RemapOp == "" {
		s.Scheduler.RemapOp = "remapycon"
	}
	if s.Tuning.BatchSize == 0 {
		s.Tuning.BatchSize = 5
	}
	if s.Tuning.ExportWorkers == 0 {
		s.Tuning.ExportWorkers = 4
	}
	if s.Tuning.CountPollInterval == "" {
		s.Tuning.CountPollInterval = "5s"
	}
	if s.Tuning.QuiescePollInterval == "" {
		s.Tuning.QuiescePollInterval = "2s"
	}
	if s.Tuning.QuiesceAfter == "" {
		s.Tuning.QuiesceAfter = "120s"
	}
}

// Validate checks the configuration surface. Grid-overlap validation happens
// later, once both grids are loaded.
func (s *RegridJobSpec) Validate() error {
	if s.Variable == "" {
		return fmt.Errorf("variable name is required")
	}
	if s.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	if s.SizeTiles <= 0 {
		return fmt.Errorf("%w: got %d", ErrBadTileSize, s.SizeTiles)
	}
	if s.Overlap < 0 {
		return fmt.Errorf("overlap must not be negative, got %g", s.Overlap)
	}
	switch s.ExportFormat {
	case ExportZarr, ExportRaster, ExportNetCDF:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, s.ExportFormat)
	}
	if s.Tuning.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative, got %d", s.Tuning.BatchSize)
	}
	return nil
}

// SafeVariable returns the variable name with dots replaced, safe for use in
// filenames and as the output variable name.
func (s *RegridJobSpec) SafeVariable() string {
	return strings.ReplaceAll(s.Variable, ".", "_")
}
