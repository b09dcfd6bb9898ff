package queue

import (
	"context"
	"time"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const recordTimeout = 5 * time.Second

// Recorder journals settled items and queues a stage retry for partial ones.
// Either side may be nil. Failures are logged and never reach the item.
type Recorder struct {
	journal *Journal
	queue   Queue
	logger  logger.Logger
	now     func() time.Time
}

func NewRecorder(journal *Journal, queue Queue, log logger.Logger) *Recorder {
	return &Recorder{
		journal: journal,
		queue:   queue,
		logger:  log.Named("recorder"),
		now:     time.Now,
	}
}

func (r *Recorder) ItemSettled(ctx context.Context, item models.UploadItem, stage docapi.Stage) {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	outcome := models.Outcome{
		ItemID:    item.ID,
		FileName:  item.File.Name,
		Status:    item.Status,
		Error:     item.Error,
		RemoteID:  item.RemoteID,
		Stage:     string(stage),
		SettledAt: r.now(),
	}

	if r.journal != nil {
		if err := r.journal.Save(ctx, outcome); err != nil {
			r.logger.Warn("Failed to journal outcome",
				logger.ItemID(item.ID),
				logger.Error(err),
			)
		}
	}

	if r.queue == nil || item.Status != models.StatusPartial || stage == "" {
		return
	}

	taskID, err := r.queue.EnqueueRetry(ctx, RetryPayload{
		ItemID:   item.ID,
		RemoteID: item.RemoteID,
		Stage:    stage,
		FileName: item.File.Name,
	})
	if err != nil {
		r.logger.Warn("Failed to queue stage retry",
			logger.ItemID(item.ID),
			logger.String("stage", string(stage)),
			logger.Error(err),
		)
		return
	}
	r.logger.Info("Queued stage retry",
		logger.ItemID(item.ID),
		logger.String("stage", string(stage)),
		logger.String("taskId", taskID),
	)
}
