package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-ingest/pkg/docapi"
)

// TaskTypeStageRetry re-runs a failed post-upload stage out of band.
const TaskTypeStageRetry = "stage:retry"

const retryQueue = "default"

// Queue schedules stage retries for items that settled as partial.
type Queue interface {
	EnqueueRetry(ctx context.Context, payload RetryPayload) (string, error)
	GetTaskStatus(ctx context.Context, itemID string) (*TaskStatus, error)
	Close() error
}

// RetryPayload names the stored document and the stage that failed. The
// stages after it run too.
type RetryPayload struct {
	ItemID   string       `json:"itemId"`
	RemoteID string       `json:"remoteId"`
	Stage    docapi.Stage `json:"stage"`
	FileName string       `json:"fileName,omitempty"`
}

func (p RetryPayload) Validate() error {
	if p.ItemID == "" || p.RemoteID == "" {
		return errors.New("retry payload needs itemId and remoteId")
	}
	if _, err := docapi.ParseStage(string(p.Stage)); err != nil {
		return err
	}
	return nil
}

// TaskID is the asynq task id; one pending retry per item.
func (p RetryPayload) TaskID() string {
	return "retry:" + p.ItemID
}

type TaskStatus struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Retried  int    `json:"retried"`
	MaxRetry int    `json:"maxRetry"`
	Error    string `json:"error,omitempty"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	Close() error
}

type AsynqQueue struct {
	client    enqueuer
	inspector inspector
	config    *QueueConfig
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

func (c *QueueConfig) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	return &AsynqQueue{
		client:    asynq.NewClient(cfg.redisOpt()),
		inspector: asynq.NewInspector(cfg.redisOpt()),
		config:    cfg,
	}
}

// EnqueueRetry schedules a retry. A retry already pending for the same item
// is left alone and its id returned.
func (q *AsynqQueue) EnqueueRetry(ctx context.Context, payload RetryPayload) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(retryQueue),
		asynq.TaskID(payload.TaskID()),
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.ProcessIn(30 * time.Second),
	}
	if q.config.ProcessTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.config.ProcessTimeout))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeStageRetry, data), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return payload.TaskID(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

// GetTaskStatus reports the state of the retry task for itemID.
func (q *AsynqQueue) GetTaskStatus(_ context.Context, itemID string) (*TaskStatus, error) {
	taskID := RetryPayload{ItemID: itemID}.TaskID()
	info, err := q.inspector.GetTaskInfo(retryQueue, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s not found: %w", taskID, err)
	}
	return convertAsynqStatus(info), nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:   info.ID,
		Retried:  info.Retried,
		MaxRetry: info.MaxRetry,
		Error:    info.LastErr,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
	case asynq.TaskStateRetry:
		status.Status = "retrying"
	case asynq.TaskStateCompleted:
		status.Status = "completed"
	case asynq.TaskStateArchived:
		status.Status = "failed"
	default:
		status.Status = info.State.String()
	}
	return status
}
