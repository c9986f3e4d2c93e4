package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retail-pipeline/internal/engine"
	"retail-pipeline/internal/models"
	"retail-pipeline/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retailCSV = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
536365,85123A,,6,2010-12-01 08:26:00,2.55,17850,United Kingdom
536365,85123A,,6,2010-12-01 08:26:00,2.55,17850,United Kingdom
C536379,D,Discount,-1,2010-12-01 09:41:00,27.50,14527,United Kingdom
536414,22139,,56,2010-12-01 11:52:00,0,,United Kingdom
581483,23843,"PAPER CRAFT , LITTLE BIRDIE",80995,2011-12-09 09:15:00,2.08,16446,United Kingdom
`

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	runs      map[string]models.RunSummary
	saves     []string
	datasets  []models.Dataset
	processed map[string]bool
	loadErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[string]models.RunSummary{}, processed: map[string]bool{}}
}

func (f *fakeStore) ReplaceDataset(_ context.Context, ds models.Dataset) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.datasets = append(f.datasets, ds)
	return nil
}

func (f *fakeStore) SaveRun(_ context.Context, run *models.RunSummary) error {
	f.runs[run.RunID] = *run
	f.saves = append(f.saves, run.Status)
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*models.RunSummary, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("no run %s", runID)
	}
	return &run, nil
}

func (f *fakeStore) ListRuns(_ context.Context, limit int) ([]models.RunSummary, error) {
	out := make([]models.RunSummary, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.processed[eventID] = true
	return nil
}

type fakeCache struct {
	lockOwner string
	released  bool
	summaries map[string]models.RunSummary
}

func newFakeCache() *fakeCache {
	return &fakeCache{summaries: map[string]models.RunSummary{}}
}

func (f *fakeCache) AcquireLock(_ context.Context, key, token string, _ time.Duration) error {
	if f.lockOwner != "" {
		return fmt.Errorf("%w: %s", redisclient.ErrLockHeld, key)
	}
	f.lockOwner = token
	return nil
}

func (f *fakeCache) ReleaseLock(_ context.Context, _, token string) (bool, error) {
	if f.lockOwner != token {
		return false, nil
	}
	f.lockOwner = ""
	f.released = true
	return true, nil
}

func (f *fakeCache) SaveRunSummary(_ context.Context, run *models.RunSummary) error {
	f.summaries[run.RunID] = *run
	return nil
}

func (f *fakeCache) GetRunSummary(_ context.Context, runID string) (*models.RunSummary, error) {
	run, ok := f.summaries[runID]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (f *fakeCache) ListRecentRuns(_ context.Context, _ int) ([]models.RunSummary, error) {
	out := make([]models.RunSummary, 0, len(f.summaries))
	for _, r := range f.summaries {
		out = append(out, r)
	}
	return out, nil
}

type fakePublisher struct {
	requested []*models.RunRequestedEvent
	completed []*models.RunCompletedEvent
	failed    []*models.RunFailedEvent
}

func (f *fakePublisher) PublishRunRequested(_ context.Context, e *models.RunRequestedEvent) error {
	f.requested = append(f.requested, e)
	return nil
}

func (f *fakePublisher) PublishRunCompleted(_ context.Context, e *models.RunCompletedEvent) error {
	f.completed = append(f.completed, e)
	return nil
}

func (f *fakePublisher) PublishRunFailed(_ context.Context, e *models.RunFailedEvent) error {
	f.failed = append(f.failed, e)
	return nil
}

type fakeExporter struct {
	formats []string
}

func (f *fakeExporter) Write(_ models.Dataset, formats []string, runTime time.Time) ([]string, error) {
	f.formats = formats
	out := make([]string, 0, len(formats))
	for _, format := range formats {
		out = append(out, fmt.Sprintf("fact_sales_%s.%s", runTime.Format("20060102_1504"), format))
	}
	return out, nil
}

type fixture struct {
	svc       *PipelineService
	store     *fakeStore
	cache     *fakeCache
	publisher *fakePublisher
	exporter  *fakeExporter
	input     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	input := filepath.Join(t.TempDir(), "online_retail.csv")
	require.NoError(t, os.WriteFile(input, []byte(retailCSV), 0o644))

	f := &fixture{
		store:     newFakeStore(),
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
		exporter:  &fakeExporter{},
		input:     input,
	}
	opts := Options{
		DefaultInputPath: input,
		ExportFormats:    []string{"parquet", "csv"},
		Engine:           engine.Options{Now: func() time.Time { return fixedNow }},
	}
	f.svc = NewPipelineService(f.store, f.cache, f.publisher, f.exporter, opts)
	return f
}

func TestRunSucceeds(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Run(context.Background(), RunRequest{RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 5, summary.TotalInput)
	assert.Equal(t, 3, summary.Accepted)
	assert.Equal(t, 2, summary.Rejected)
	assert.Equal(t, map[string]int{"duplicate": 1, "invalid_price": 1}, summary.Rejections)
	assert.Equal(t, 1, summary.Flags["cancelled"])
	assert.Equal(t, 1, summary.Flags["high_quantity"])
	assert.Equal(t, 3, summary.TableRows[models.TableFactSales])
	assert.Len(t, summary.ExportedFiles, 2)
	assert.Equal(t, fixedNow, summary.FinishedAt)

	assert.Equal(t, []string{models.RunStatusRunning, models.RunStatusSucceeded}, f.store.saves)
	require.Len(t, f.store.datasets, 1)
	assert.Len(t, f.store.datasets[0].Facts, 3)
	assert.Equal(t, []string{"parquet", "csv"}, f.exporter.formats)

	require.Len(t, f.publisher.completed, 1)
	assert.Equal(t, "run-1", f.publisher.completed[0].RunID)
	assert.Empty(t, f.publisher.failed)

	assert.True(t, f.cache.released)
	assert.Equal(t, models.RunStatusSucceeded, f.cache.summaries["run-1"].Status)
}

func TestRunGeneratesRunID(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Run(context.Background(), RunRequest{Formats: []string{"csv"}})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"csv"}, f.exporter.formats)
}

func TestRunBlockedByLock(t *testing.T) {
	f := newFixture(t)
	f.cache.lockOwner = "other-run"

	_, err := f.svc.Run(context.Background(), RunRequest{RunID: "run-2"})

	assert.True(t, errors.Is(err, redisclient.ErrLockHeld))
	assert.Empty(t, f.store.saves)
	assert.Equal(t, "other-run", f.cache.lockOwner)
}

func TestRunIngestionFailure(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Run(context.Background(), RunRequest{
		RunID:     "run-3",
		InputPath: filepath.Join(t.TempDir(), "missing.csv"),
	})

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Contains(t, summary.ErrorMessage, "ingestion failed")
	assert.Equal(t, models.RunStatusFailed, f.store.runs["run-3"].Status)
	require.Len(t, f.publisher.failed, 1)
	assert.Empty(t, f.publisher.failed[0].Invariant)
	assert.Empty(t, f.store.datasets)
	assert.True(t, f.cache.released)
}

func TestRunConsistencyFailureReportsInvariant(t *testing.T) {
	f := newFixture(t)
	f.svc.WithLoader(func(string) ([]models.RawRecord, error) {
		return nil, &engine.ConsistencyError{Invariant: engine.InvariantLineTotal, RowIndex: 4}
	})

	_, err := f.svc.Run(context.Background(), RunRequest{RunID: "run-4"})

	require.Error(t, err)
	require.Len(t, f.publisher.failed, 1)
	assert.Equal(t, engine.InvariantLineTotal, f.publisher.failed[0].Invariant)
	require.NotNil(t, f.publisher.failed[0].RowIndex)
	assert.Equal(t, 4, *f.publisher.failed[0].RowIndex)
}

func TestRunLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.loadErr = errors.New("connection reset")

	summary, err := f.svc.Run(context.Background(), RunRequest{RunID: "run-5"})

	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Nil(t, f.exporter.formats)
	assert.Empty(t, f.publisher.completed)
}

func TestRunWithoutCollaborators(t *testing.T) {
	f := newFixture(t)
	svc := NewPipelineService(nil, nil, nil, nil, Options{DefaultInputPath: f.input})

	summary, err := svc.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Accepted)
	assert.Empty(t, summary.ExportedFiles)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.cache.summaries["cached"] = models.RunSummary{RunID: "cached", Status: models.RunStatusSucceeded}
	f.store.runs["stored"] = models.RunSummary{RunID: "stored", Status: models.RunStatusFailed}

	run, err := f.svc.GetRun(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)

	run, err = f.svc.GetRun(context.Background(), "stored")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	_, err = f.svc.GetRun(context.Background(), "unknown")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Run(context.Background(), RunRequest{RunID: "run-6"})
	require.NoError(t, err)

	runs, err := f.svc.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-6", runs[0].RunID)
}

func TestRequestRun(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.RequestRun(context.Background(), RunRequest{Formats: []string{"csv"}})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusQueued, summary.Status)
	require.Len(t, f.publisher.requested, 1)
	event := f.publisher.requested[0]
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, f.input, event.InputPath)
	assert.Equal(t, models.EventTypeRunRequested, event.EventType)
	assert.Equal(t, models.RunStatusQueued, f.cache.summaries[summary.RunID].Status)
}

func TestRequestRunWithoutPublisher(t *testing.T) {
	svc := NewPipelineService(nil, nil, nil, nil, Options{})

	_, err := svc.RequestRun(context.Background(), RunRequest{})
	assert.True(t, errors.Is(err, ErrNoPublisher))
}

func TestHandleRunRequestedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	event := &models.RunRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeRunRequested},
		RunID:     "run-7",
	}

	require.NoError(t, f.svc.HandleRunRequested(context.Background(), event))
	require.NoError(t, f.svc.HandleRunRequested(context.Background(), event))

	assert.Len(t, f.store.datasets, 1)
	assert.True(t, f.store.processed["evt-1"])
}

func TestHandleRunRequestedRetriesWhenLocked(t *testing.T) {
	f := newFixture(t)
	f.cache.lockOwner = "other-run"
	event := &models.RunRequestedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeRunRequested},
		RunID:     "run-8",
	}

	err := f.svc.HandleRunRequested(context.Background(), event)

	assert.Error(t, err)
	assert.False(t, f.store.processed["evt-2"])
}
