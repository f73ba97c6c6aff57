// Package store is the sqlite-backed job and tile registry. It records what
// the pipeline believes about each run: job status, per-stage progress, errors
// and the per-tile result registry. The registry is observational only; the
// pipeline's completion detection still reads the filesystem.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"regrid-pipeline/internal/model"
)

var db *sql.DB

// InitDB opens (or creates) the registry database and its tables.
func InitDB(dbPath string) error {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			spec TEXT,
			status TEXT,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS job_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT,
			error_message TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS stage_progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT,
			stage TEXT,
			status TEXT,
			started_at DATETIME,
			ended_at DATETIME,
			item_count INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			job_id TEXT,
			lat_min REAL,
			lat_max REAL,
			lon_min REAL,
			lon_max REAL,
			status TEXT,
			updated_at DATETIME,
			PRIMARY KEY (job_id, lat_min, lat_max, lon_min, lon_max)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveJob stores a new regrid job in pending state.
func SaveJob(jobID string, spec model.RegridJobSpec) error {
	if db == nil {
		return nil
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO jobs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, specJSON, model.JobStatusPending, now, now)
	return err
}

// UpdateJobStatus updates a job's lifecycle state.
func UpdateJobStatus(jobID string, status string) error {
	if db == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, now, jobID)
	return err
}

// SaveJobError records an error for a job.
func SaveJobError(jobID string, err error) error {
	if db == nil || err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := db.Exec(`INSERT INTO job_errors (job_id, error_message, created_at) VALUES (?, ?, ?)`,
		jobID, err.Error(), now)
	return e
}

// SaveStageProgress appends one stage-progress row.
func SaveStageProgress(jobID, stage, status string, start, end time.Time, count int) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(`INSERT INTO stage_progress (job_id, stage, status, started_at, ended_at, item_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, stage, status, start.UTC(), end.UTC(), count)
	return err
}

// SaveTiles registers every selected tile as pending.
func SaveTiles(jobID string, tiles []model.TileSpec) error {
	if db == nil {
		return nil
	}
	now := time.Now().UTC()
	for _, t := range tiles {
		_, err := db.Exec(`INSERT OR REPLACE INTO tiles (job_id, lat_min, lat_max, lon_min, lon_max, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			jobID, t.LatMin, t.LatMax, t.LonMin, t.LonMax, model.TileStatusPending, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateTileStatus moves one tile through the registry lifecycle.
func UpdateTileStatus(jobID string, t model.TileSpec, status string) error {
	if db == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE tiles SET status = ?, updated_at = ?
		WHERE job_id = ? AND lat_min = ? AND lat_max = ? AND lon_min = ? AND lon_max = ?`,
		status, now, jobID, t.LatMin, t.LatMax, t.LonMin, t.LonMax)
	return err
}

// TileStatus is one row of the per-tile registry.
type TileStatus struct {
	Tile      model.TileSpec `json:"tile"`
	Status    string         `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ListTileStatuses returns the tile registry for a job.
func ListTileStatuses(jobID string) ([]TileStatus, error) {
	rows, err := db.Query(`SELECT lat_min, lat_max, lon_min, lon_max, status, updated_at
		FROM tiles WHERE job_id = ? ORDER BY lat_min, lon_min`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TileStatus
	for rows.Next() {
		var ts TileStatus
		if err := rows.Scan(&ts.Tile.LatMin, &ts.Tile.LatMax, &ts.Tile.LonMin, &ts.Tile.LonMax,
			&ts.Status, &ts.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ListJobs returns all jobs with basic info.
func ListJobs() ([]map[string]interface{}, error) {
	rows, err := db.Query(`SELECT id, status, created_at, updated_at FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []map[string]interface{}
	for rows.Next() {
		var id, status string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&id, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, map[string]interface{}{
			"id":        id,
			"status":    status,
			"createdAt": createdAt,
			"updatedAt": updatedAt,
		})
	}
	return jobs, rows.Err()
}

// GetJob fetches full job spec and status.
func GetJob(jobID string) (map[string]interface{}, error) {
	var specJSON, status string
	var createdAt, updatedAt time.Time

	err := db.QueryRow(`SELECT spec, status, created_at, updated_at FROM jobs WHERE id = ?`, jobID).
		Scan(&specJSON, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var spec model.RegridJobSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":        jobID,
		"spec":      spec,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
	}, nil
}

// GetJobErrors returns the recorded errors for a job, newest first.
func GetJobErrors(jobID string) ([]map[string]interface{}, error) {
	rows, err := db.Query(`SELECT error_message, created_at FROM job_errors
		WHERE job_id = ? ORDER BY created_at DESC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var msg string
		var at time.Time
		if err := rows.Scan(&msg, &at); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{"error": msg, "createdAt": at})
	}
	return out, rows.Err()
}

// StageProgress is one stage-progress row.
type StageProgress struct {
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	ItemCount int       `json:"item_count"`
}

// GetStageProgress returns the stage progress rows for a job in order.
func GetStageProgress(jobID string) ([]StageProgress, error) {
	rows, err := db.Query(`SELECT stage, status, started_at, ended_at, item_count
		FROM stage_progress WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageProgress
	for rows.Next() {
		var sp StageProgress
		if err := rows.Scan(&sp.Stage, &sp.Status, &sp.StartedAt, &sp.EndedAt, &sp.ItemCount); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
