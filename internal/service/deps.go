package service

import (
	"context"
	"time"

	"retail-pipeline/internal/models"
)

// RunStore persists the star schema and run history
type RunStore interface {
	ReplaceDataset(ctx context.Context, ds models.Dataset) error
	SaveRun(ctx context.Context, run *models.RunSummary) error
	GetRun(ctx context.Context, runID string) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// RunCache holds the single-writer lock and recently finished run summaries
type RunCache interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, lockKey, token string) (bool, error)
	SaveRunSummary(ctx context.Context, run *models.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (*models.RunSummary, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// RunEventPublisher announces run lifecycle events
type RunEventPublisher interface {
	PublishRunRequested(ctx context.Context, event *models.RunRequestedEvent) error
	PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error
	PublishRunFailed(ctx context.Context, event *models.RunFailedEvent) error
}

// Exporter writes the modeled tables to files
type Exporter interface {
	Write(ds models.Dataset, formats []string, runTime time.Time) ([]string, error)
}

// Loader reads the raw batch for a run
type Loader func(path string) ([]models.RawRecord, error)
