package service

import (
	"context"
	"errors"
	"fmt"

	"retail-pipeline/internal/models"
	"retail-pipeline/internal/redisclient"
	"retail-pipeline/internal/util"

	"go.uber.org/zap"
)

// HandleRunRequested executes a queued run exactly once per event. A run that
// fails on data or consistency still marks the event processed; a run blocked by
// the lock does not, so a redelivery can retry it.
func (s *PipelineService) HandleRunRequested(ctx context.Context, event *models.RunRequestedEvent) error {
	ctx, span := util.StartRunSpan(ctx, "PipelineService.HandleRunRequested", event.RunID)
	defer span.End()

	if s.store != nil {
		processed, err := s.store.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			s.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	_, err := s.Run(ctx, RunRequest{
		RunID:     event.RunID,
		InputPath: event.InputPath,
		Formats:   event.Formats,
	})
	if errors.Is(err, redisclient.ErrLockHeld) {
		return err
	}

	if s.store != nil {
		if markErr := s.store.MarkEventProcessed(ctx, event.EventID, event.EventType); markErr != nil {
			return fmt.Errorf("failed to mark event processed: %w", markErr)
		}
	}
	if err != nil {
		s.logger.Warn("Queued run finished with failure",
			zap.String("run_id", event.RunID),
			zap.Error(err))
	}
	return nil
}
