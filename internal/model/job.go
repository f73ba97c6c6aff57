package model

// Tile job lifecycle states tracked in the registry.
const (
	TileStatusPending   = "pending"
	TileStatusSucceeded = "succeeded"
	TileStatusFailed    = "failed"
)

// Regrid job states as the pipeline moves through its stages.
const (
	JobStatusPending     = "pending"
	JobStatusRunning     = "running"
	JobStatusTiling      = "tiling"
	JobStatusExporting   = "exporting"
	JobStatusDispatching = "dispatching"
	JobStatusWaiting     = "waiting"
	JobStatusAggregating = "aggregating"
	JobStatusCompleted   = "completed"
	JobStatusFailed      = "failed"
)

// TileJob is one unit of remap work: a tile plus the three files the external
// remap tool needs. The paths are relative to the intermediate directory so the
// generated scripts stay location-independent.
type TileJob struct {
	Tile       TileSpec `json:"tile"`
	TargetPath string   `json:"target_path"`
	SourcePath string   `json:"source_path"`
	OutputPath string   `json:"output_path"`
}

// JobBatch is an ordered group of tile jobs scripted together and submitted to
// the scheduler as one job. Tiles inside a batch run sequentially; batches run
// in parallel with each other.
type JobBatch struct {
	Index      int       `json:"index"`
	Jobs       []TileJob `json:"jobs"`
	ScriptPath string    `json:"script_path"`
}
