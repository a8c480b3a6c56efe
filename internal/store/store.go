package store

import (
	"context"

	"github.com/sells-group/returns-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for consolidation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Anomalies
	SaveAnomalies(ctx context.Context, runID string, anomalies []model.Anomaly) error
	ListAnomalies(ctx context.Context, runID string) ([]model.Anomaly, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
