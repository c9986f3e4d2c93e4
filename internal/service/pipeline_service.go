package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-pipeline/internal/engine"
	"retail-pipeline/internal/ingest"
	"retail-pipeline/internal/models"
	"retail-pipeline/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runLockKey guards the star schema: every run is a full refresh, so only one may write at a time
const runLockKey = "pipeline-run"

var (
	// ErrRunNotFound is returned when neither the cache nor the store knows a run
	ErrRunNotFound = errors.New("run not found")
	// ErrNoPublisher is returned when asynchronous runs are requested without a broker
	ErrNoPublisher = errors.New("event publisher not configured")
)

// Options configure a PipelineService
type Options struct {
	DefaultInputPath string
	ExportFormats    []string
	LockTTL          time.Duration
	RecentRunsLimit  int
	Engine           engine.Options
}

// RunRequest describes one pipeline run
type RunRequest struct {
	RunID     string   `json:"run_id,omitempty"`
	InputPath string   `json:"input_path,omitempty"`
	Formats   []string `json:"formats,omitempty"`
}

// PipelineService runs the cleaning and modeling engine and hands its output to
// storage, export, cache and event collaborators. Any collaborator may be nil.
type PipelineService struct {
	store     RunStore
	cache     RunCache
	publisher RunEventPublisher
	exporter  Exporter
	load      Loader
	opts      Options
	logger    *zap.Logger
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(
	store RunStore,
	cache RunCache,
	publisher RunEventPublisher,
	exporter Exporter,
	opts Options,
) *PipelineService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	if opts.RecentRunsLimit <= 0 {
		opts.RecentRunsLimit = 50
	}
	if opts.Engine.Now == nil {
		opts.Engine.Now = time.Now
	}
	return &PipelineService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		exporter:  exporter,
		load:      ingest.ReadFile,
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// WithLoader replaces the input reader
func (s *PipelineService) WithLoader(load Loader) *PipelineService {
	s.load = load
	return s
}

// Run executes one synchronous full-refresh run. Data-quality exclusions never fail
// a run; ingestion, consistency and persistence errors do, and are recorded as a
// FAILED summary that is also returned alongside the error.
func (s *PipelineService) Run(ctx context.Context, req RunRequest) (*models.RunSummary, error) {
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if req.InputPath == "" {
		req.InputPath = s.opts.DefaultInputPath
	}
	if len(req.Formats) == 0 {
		req.Formats = s.opts.ExportFormats
	}

	ctx, span := util.StartRunSpan(ctx, "PipelineService.Run", req.RunID)
	defer span.End()

	logger := util.RunLogger(req.RunID)
	start := time.Now()

	if s.cache != nil {
		if err := s.cache.AcquireLock(ctx, runLockKey, req.RunID, s.opts.LockTTL); err != nil {
			util.PipelineRunsTotal.WithLabelValues("locked").Inc()
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			if _, err := s.cache.ReleaseLock(context.Background(), runLockKey, req.RunID); err != nil {
				logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	summary := &models.RunSummary{
		RunID:     req.RunID,
		Status:    models.RunStatusRunning,
		InputPath: req.InputPath,
		StartedAt: s.opts.Engine.Now(),
	}
	if s.store != nil {
		if err := s.store.SaveRun(ctx, summary); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
	}
	logger.Info("Pipeline run started", zap.String("input", req.InputPath), zap.Strings("formats", req.Formats))

	result, files, err := s.execute(ctx, req, logger)
	util.PipelineRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return s.fail(ctx, summary, err, logger)
	}

	s.complete(ctx, summary, result, files, logger)
	return summary, nil
}

func (s *PipelineService) execute(ctx context.Context, req RunRequest, logger *zap.Logger) (*engine.Result, []string, error) {
	var raw []models.RawRecord
	if err := timed("ingest", func() error {
		var err error
		raw, err = s.load(req.InputPath)
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("ingestion failed: %w", err)
	}

	result, err := engine.New(s.opts.Engine, logger).Run(ctx, raw)
	if err != nil {
		return nil, nil, err
	}

	if s.store != nil {
		if err := timed("load", func() error {
			return s.store.ReplaceDataset(ctx, result.Dataset)
		}); err != nil {
			return nil, nil, fmt.Errorf("failed to load star schema: %w", err)
		}
	}

	var files []string
	if s.exporter != nil && len(req.Formats) > 0 {
		if err := timed("export", func() error {
			var err error
			files, err = s.exporter.Write(result.Dataset, req.Formats, result.RunTime)
			return err
		}); err != nil {
			return nil, nil, fmt.Errorf("export failed: %w", err)
		}
	}
	return result, files, nil
}

func (s *PipelineService) complete(ctx context.Context, summary *models.RunSummary, result *engine.Result, files []string, logger *zap.Logger) {
	report := result.Report
	summary.Status = models.RunStatusSucceeded
	summary.TotalInput = report.InitialRows
	summary.Accepted = len(result.Accepted)
	summary.Rejected = len(result.Rejected)
	summary.PassRate = report.PassRate
	summary.Rejections = report.Rejections
	summary.Flags = report.Flags
	summary.TableRows = report.TableRows
	summary.ExportedFiles = files
	summary.FinishedAt = s.opts.Engine.Now()

	util.PipelineRunsTotal.WithLabelValues("succeeded").Inc()
	util.PipelineRecordsTotal.WithLabelValues("input").Add(float64(summary.TotalInput))
	util.PipelineRecordsTotal.WithLabelValues("accepted").Add(float64(summary.Accepted))
	util.PipelineRecordsTotal.WithLabelValues("rejected").Add(float64(summary.Rejected))
	for reason, n := range summary.Rejections {
		util.PipelineRejectionsTotal.WithLabelValues(reason).Add(float64(n))
	}
	for flag, n := range summary.Flags {
		util.PipelineFlagsTotal.WithLabelValues(flag).Add(float64(n))
	}
	for table, n := range summary.TableRows {
		util.PipelineDimensionRows.WithLabelValues(table).Set(float64(n))
	}

	s.record(ctx, summary, logger)

	if s.publisher != nil {
		event := &models.RunCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRunCompleted,
				Timestamp: time.Now(),
			},
			RunID:      summary.RunID,
			TotalInput: summary.TotalInput,
			Accepted:   summary.Accepted,
			Rejected:   summary.Rejected,
			Rejections: summary.Rejections,
			Flags:      summary.Flags,
			TableRows:  summary.TableRows,
		}
		if err := s.publisher.PublishRunCompleted(ctx, event); err != nil {
			logger.Warn("Failed to publish run completed event", zap.Error(err))
		}
	}

	logger.Info("Pipeline run succeeded",
		zap.Int("input", summary.TotalInput),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Float64("pass_rate", summary.PassRate),
		zap.Int("files", len(files)))
}

func (s *PipelineService) fail(ctx context.Context, summary *models.RunSummary, cause error, logger *zap.Logger) (*models.RunSummary, error) {
	summary.Status = models.RunStatusFailed
	summary.ErrorMessage = cause.Error()
	summary.FinishedAt = s.opts.Engine.Now()

	util.PipelineRunsTotal.WithLabelValues("failed").Inc()

	event := &models.RunFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRunFailed,
			Timestamp: time.Now(),
		},
		RunID:  summary.RunID,
		Reason: cause.Error(),
	}

	var consistency *engine.ConsistencyError
	if errors.As(cause, &consistency) {
		util.PipelineConsistencyFailures.WithLabelValues(consistency.Invariant).Inc()
		event.Invariant = consistency.Invariant
		if consistency.RowIndex != engine.NoRow {
			row := consistency.RowIndex
			event.RowIndex = &row
		}
	}

	logger.Error("Pipeline run failed", zap.Error(cause))
	s.record(ctx, summary, logger)

	if s.publisher != nil {
		if err := s.publisher.PublishRunFailed(ctx, event); err != nil {
			logger.Warn("Failed to publish run failed event", zap.Error(err))
		}
	}
	return summary, cause
}

// record writes the final summary to the store and the cache; failures are logged
func (s *PipelineService) record(ctx context.Context, summary *models.RunSummary, logger *zap.Logger) {
	if s.store != nil {
		if err := s.store.SaveRun(ctx, summary); err != nil {
			logger.Error("Failed to save run summary", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.SaveRunSummary(ctx, summary); err != nil {
			logger.Warn("Failed to cache run summary", zap.Error(err))
		}
	}
}

// GetRun looks a run up in the cache, then in the store
func (s *PipelineService) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	ctx, span := util.StartRunSpan(ctx, "PipelineService.GetRun", runID)
	defer span.End()

	if s.cache != nil {
		run, err := s.cache.GetRunSummary(ctx, runID)
		if err != nil {
			s.logger.Warn("Run cache lookup failed", zap.String("run_id", runID), zap.Error(err))
		} else if run != nil {
			return run, nil
		}
	}

	if s.store != nil {
		run, err := s.store.GetRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		s.logger.Debug("Run store lookup failed", zap.String("run_id", runID), zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// ListRuns returns recent runs, newest first
func (s *PipelineService) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	ctx, span := util.StartSpan(ctx, "PipelineService.ListRuns")
	defer span.End()

	if limit <= 0 || limit > s.opts.RecentRunsLimit {
		limit = s.opts.RecentRunsLimit
	}
	if s.store != nil {
		return s.store.ListRuns(ctx, limit)
	}
	if s.cache != nil {
		return s.cache.ListRecentRuns(ctx, limit)
	}
	return []models.RunSummary{}, nil
}

// RequestRun queues a run for a worker and returns its QUEUED summary
func (s *PipelineService) RequestRun(ctx context.Context, req RunRequest) (*models.RunSummary, error) {
	if s.publisher == nil {
		return nil, ErrNoPublisher
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if req.InputPath == "" {
		req.InputPath = s.opts.DefaultInputPath
	}

	ctx, span := util.StartRunSpan(ctx, "PipelineService.RequestRun", req.RunID)
	defer span.End()

	event := &models.RunRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRunRequested,
			Timestamp: time.Now(),
		},
		RunID:     req.RunID,
		InputPath: req.InputPath,
		Formats:   req.Formats,
	}
	if err := s.publisher.PublishRunRequested(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish run request: %w", err)
	}

	summary := &models.RunSummary{
		RunID:     req.RunID,
		Status:    models.RunStatusQueued,
		InputPath: req.InputPath,
		StartedAt: s.opts.Engine.Now(),
	}
	if s.cache != nil {
		if err := s.cache.SaveRunSummary(ctx, summary); err != nil {
			s.logger.Warn("Failed to cache queued run", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}

	s.logger.Info("Pipeline run requested", zap.String("run_id", req.RunID), zap.String("input", req.InputPath))
	return summary, nil
}

func timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	util.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}
