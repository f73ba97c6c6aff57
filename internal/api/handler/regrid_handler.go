package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/model"
	"regrid-pipeline/internal/pipeline"
	"regrid-pipeline/internal/store"
)

// CreateRegrid submits a new regrid job
// @Summary Submit a regrid job
// @Description Create and start a new tiled regrid job with the provided configuration
// @Tags regrids
// @Accept json
// @Produce json
// @Param regrid body model.RegridJobSpec true "Regrid job configuration"
// @Success 200 {object} map[string]interface{} "Job accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /regrids [post]
func CreateRegrid(w http.ResponseWriter, r *http.Request) {
	var spec model.RegridJobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if spec.SourcePath == "" || spec.TargetPath == "" {
		http.Error(w, "source_path and target_path are required", http.StatusBadRequest)
		return
	}

	jobID := uuid.New().String()
	if err := store.SaveJob(jobID, spec); err != nil {
		http.Error(w, "Failed to save job", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := pipeline.Run(context.Background(), jobID, spec); err != nil {
			config.Logger.Error().Str("job_id", jobID).Err(err).Msg("regrid job failed")
		}
	}()

	resp := map[string]interface{}{
		"message":   "Regrid job accepted",
		"jobID":     jobID,
		"status":    model.JobStatusPending,
		"createdAt": time.Now().UTC(),
	}
	writeJSON(w, resp)
}

// ListRegrids retrieves all regrid jobs
// @Summary List regrid jobs
// @Description Get all regrid jobs with their current status
// @Tags regrids
// @Produce json
// @Success 200 {array} map[string]interface{} "List of jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /regrids [get]
func ListRegrids(w http.ResponseWriter, r *http.Request) {
	jobs, err := store.ListJobs()
	if err != nil {
		http.Error(w, "Failed to fetch jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, jobs)
}

// GetRegrid retrieves one regrid job
// @Summary Get a regrid job
// @Description Retrieve spec and status of a specific regrid job
// @Tags regrids
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job details"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /regrids/{id} [get]
func GetRegrid(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r, "")
	if !ok {
		return
	}
	job, err := store.GetJob(jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Job not found", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, job)
}

// GetRegridTiles retrieves the per-tile registry for a job
// @Summary Get tile statuses
// @Description Per-tile registry entries (pending, succeeded, failed) for a job
// @Tags regrids
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {array} store.TileStatus "Tile statuses"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /regrids/{id}/tiles [get]
func GetRegridTiles(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r, "/tiles")
	if !ok {
		return
	}
	tiles, err := store.ListTileStatuses(jobID)
	if err != nil {
		http.Error(w, "Failed to fetch tile statuses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tiles)
}

// GetRegridProgress retrieves stage progress rows for a job
// @Summary Get stage progress
// @Description Stage-by-stage progress of a regrid job
// @Tags regrids
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {array} store.StageProgress "Stage progress"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /regrids/{id}/progress [get]
func GetRegridProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r, "/progress")
	if !ok {
		return
	}
	progress, err := store.GetStageProgress(jobID)
	if err != nil {
		http.Error(w, "Failed to fetch progress", http.StatusInternalServerError)
		return
	}
	writeJSON(w, progress)
}

// GetRegridErrors retrieves recorded errors for a job
// @Summary Get job errors
// @Description Errors recorded while running a regrid job
// @Tags regrids
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {array} map[string]interface{} "Errors"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /regrids/{id}/errors [get]
func GetRegridErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r, "/errors")
	if !ok {
		return
	}
	errs, err := store.GetJobErrors(jobID)
	if err != nil {
		http.Error(w, "Failed to fetch errors", http.StatusInternalServerError)
		return
	}
	writeJSON(w, errs)
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request, suffix string) (string, bool) {
	const prefix = "/api/v1/regrids/"
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}
	jobID := strings.TrimSuffix(path[len(prefix):], suffix)
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return "", false
	}
	return jobID, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
