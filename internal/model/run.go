package model

import "time"

// RunStatus represents the current state of a consolidation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams captures the inputs a run was started with.
type RunParams struct {
	InputDir    string   `json:"input_dir"`
	OutputDir   string   `json:"output_dir"`
	SchemaPath  string   `json:"schema_path,omitempty"`
	Files       []string `json:"files"`
	Concurrency int      `json:"concurrency"`
}

// Run represents a single consolidation run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Params     RunParams  `json:"params"`
	Result     *RunResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// FileFailure records a submission file that could not be read.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// RunResult holds the final outcome of a consolidation run.
type RunResult struct {
	FilesTotal   int           `json:"files_total"`
	FilesLoaded  int           `json:"files_loaded"`
	FilesFailed  int           `json:"files_failed"`
	FailedFiles  []FileFailure `json:"failed_files,omitempty"`
	RowsTotal    int           `json:"rows_total"`
	RowsValid    int           `json:"rows_valid"`
	RowsExcluded int           `json:"rows_excluded"`
	Records      int           `json:"records"`
	Duplicates   int           `json:"duplicates"`
	Conflicts    int           `json:"conflicts"`
	Warnings     int           `json:"warnings"`
	Blocking     int           `json:"blocking"`
	TopReasons   []ReasonCount `json:"top_reasons,omitempty"`
	Unclassified int           `json:"unclassified"`
	Artifacts    []string      `json:"artifacts,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}
