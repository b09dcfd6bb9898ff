package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

// StageRunner invokes one post-upload stage.
type StageRunner interface {
	RunStage(ctx context.Context, stage docapi.Stage, remoteID string) error
}

// OutcomeStore persists the result of a retry.
type OutcomeStore interface {
	Save(ctx context.Context, outcome models.Outcome) error
}

// StageRetryHandler re-runs the failed stage of a partial item and every
// stage after it.
type StageRetryHandler struct {
	stages  StageRunner
	journal OutcomeStore
	logger  logger.Logger
	now     func() time.Time
}

func NewStageRetryHandler(stages StageRunner, journal OutcomeStore, log logger.Logger) *StageRetryHandler {
	return &StageRetryHandler{
		stages:  stages,
		journal: journal,
		logger:  log.Named("retry"),
		now:     time.Now,
	}
}

// ProcessTask implements asynq.Handler.
func (h *StageRetryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid task data: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		logger.ItemID(payload.ItemID),
		logger.DocumentID(payload.RemoteID),
	)
	log.Info("Retrying stages", logger.String("from", string(payload.Stage)))
	h.writeResult(t, `{"status":"running"}`)

	for _, stage := range stagesFrom(payload.Stage) {
		if err := h.stages.RunStage(ctx, stage, payload.RemoteID); err != nil {
			message := fmt.Sprintf("%s failed: %s", stage.Label(), docapi.Message(err))
			log.Warn("Stage retry failed", logger.String("stage", string(stage)), logger.Error(err))

			h.record(ctx, payload, models.StatusPartial, message, stage)
			h.writeResult(t, fmt.Sprintf(`{"status":"failed","error":%q}`, message))
			if !retryable(err) {
				return fmt.Errorf("%s: %w", message, asynq.SkipRetry)
			}
			return errors.New(message)
		}
	}

	h.record(ctx, payload, models.StatusSuccess, "", "")
	h.writeResult(t, `{"status":"completed"}`)
	log.Info("Stage retry succeeded")
	return nil
}

func (h *StageRetryHandler) record(ctx context.Context, p queue.RetryPayload, status models.Status, message string, stage docapi.Stage) {
	if h.journal == nil {
		return
	}
	err := h.journal.Save(ctx, models.Outcome{
		ItemID:    p.ItemID,
		FileName:  p.FileName,
		Status:    status,
		Error:     message,
		RemoteID:  p.RemoteID,
		Stage:     string(stage),
		SettledAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("Failed to journal retry outcome",
			logger.ItemID(p.ItemID),
			logger.Error(err),
		)
	}
}

func (h *StageRetryHandler) writeResult(t *asynq.Task, result string) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	if _, err := w.Write([]byte(result)); err != nil {
		h.logger.Error("Failed to write task result", logger.Error(err))
	}
}

func stagesFrom(stage docapi.Stage) []docapi.Stage {
	if stage == docapi.StageExtract {
		return []docapi.Stage{docapi.StageExtract, docapi.StageIndex}
	}
	return []docapi.Stage{stage}
}

// retryable reports whether trying again could help. Client errors other
// than timeouts and rate limits will fail the same way.
func retryable(err error) bool {
	var apiErr *docapi.Error
	if !errors.As(err, &apiErr) || apiErr.Status == 0 {
		return true
	}
	switch apiErr.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return apiErr.Status >= http.StatusInternalServerError
}

type StageRetryWorker struct {
	BaseWorker
	handler *StageRetryHandler
}

func NewStageRetryWorker(cfg *Config, handler *StageRetryHandler, log logger.Logger) *StageRetryWorker {
	w := &StageRetryWorker{
		BaseWorker: newBaseWorker(cfg, log),
		handler:    handler,
	}
	w.mux.Handle(queue.TaskTypeStageRetry, handler)
	return w
}
