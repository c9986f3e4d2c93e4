package worker

import (
	"context"

	"retail-pipeline/internal/broker"
	"retail-pipeline/internal/service"
	"retail-pipeline/internal/util"

	"go.uber.org/zap"
)

// RunWorker executes pipeline runs queued on the pipeline topic
type RunWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewRunWorker creates a new run worker
func NewRunWorker(consumer *broker.Consumer, pipelineService *service.PipelineService) *RunWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnRunRequested(pipelineService.HandleRunRequested)

	return &RunWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming run requests until ctx is cancelled
func (w *RunWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting run worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RunWorker) Stop() error {
	w.logger.Info("Stopping run worker")
	return w.consumer.Close()
}
