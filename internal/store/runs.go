package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retail-pipeline/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// runRow is the pipeline_runs row; the per-name breakdowns live in the details document
type runRow struct {
	RunID        string       `db:"run_id"`
	Status       string       `db:"status"`
	InputPath    string       `db:"input_path"`
	TotalInput   int          `db:"total_input"`
	Accepted     int          `db:"accepted"`
	Rejected     int          `db:"rejected"`
	PassRate     float64      `db:"pass_rate"`
	ErrorMessage string       `db:"error_message"`
	Details      []byte       `db:"details"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   sql.NullTime `db:"finished_at"`
}

type runDetails struct {
	Rejections    map[string]int `json:"rejections,omitempty"`
	Flags         map[string]int `json:"flags,omitempty"`
	TableRows     map[string]int `json:"table_rows,omitempty"`
	ExportedFiles []string       `json:"exported_files,omitempty"`
}

func toRow(run *models.RunSummary) (runRow, error) {
	details, err := json.Marshal(runDetails{
		Rejections:    run.Rejections,
		Flags:         run.Flags,
		TableRows:     run.TableRows,
		ExportedFiles: run.ExportedFiles,
	})
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal run details: %w", err)
	}
	return runRow{
		RunID:        run.RunID,
		Status:       run.Status,
		InputPath:    run.InputPath,
		TotalInput:   run.TotalInput,
		Accepted:     run.Accepted,
		Rejected:     run.Rejected,
		PassRate:     run.PassRate,
		ErrorMessage: run.ErrorMessage,
		Details:      details,
		StartedAt:    run.StartedAt,
		FinishedAt:   sql.NullTime{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()},
	}, nil
}

func (r runRow) toSummary() (*models.RunSummary, error) {
	var details runDetails
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run %s details: %w", r.RunID, err)
		}
	}
	run := &models.RunSummary{
		RunID:         r.RunID,
		Status:        r.Status,
		InputPath:     r.InputPath,
		TotalInput:    r.TotalInput,
		Accepted:      r.Accepted,
		Rejected:      r.Rejected,
		PassRate:      r.PassRate,
		Rejections:    details.Rejections,
		Flags:         details.Flags,
		TableRows:     details.TableRows,
		ExportedFiles: details.ExportedFiles,
		ErrorMessage:  r.ErrorMessage,
		StartedAt:     r.StartedAt,
	}
	if r.FinishedAt.Valid {
		run.FinishedAt = r.FinishedAt.Time
	}
	return run, nil
}

// SaveRun inserts or updates a run summary
func (s *Store) SaveRun(ctx context.Context, run *models.RunSummary) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_runs (run_id, status, input_path, total_input, accepted, rejected,
			pass_rate, error_message, details, started_at, finished_at)
		VALUES (:run_id, :status, :input_path, :total_input, :accepted, :rejected,
			:pass_rate, :error_message, :details, :started_at, :finished_at)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_input = EXCLUDED.total_input,
			accepted = EXCLUDED.accepted,
			rejected = EXCLUDED.rejected,
			pass_rate = EXCLUDED.pass_rate,
			error_message = EXCLUDED.error_message,
			details = EXCLUDED.details,
			finished_at = EXCLUDED.finished_at`

	_, err = s.db.NamedExecContext(ctx, query, row)
	return err
}

// GetRun retrieves a run by id
func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM pipeline_runs WHERE run_id = $1", runID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return row.toSummary()
}

// ListRuns retrieves the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM pipeline_runs ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}

	runs := make([]models.RunSummary, 0, len(rows))
	for _, r := range rows {
		run, err := r.toSummary()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}
