package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-ingest/internal/models"
)

var ErrNotFound = errors.New("outcome not found")

const journalPrefix = "ingest:outcome:"

type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Journal keeps the terminal outcome of each item in Redis for ttl.
type Journal struct {
	redis kv
	ttl   time.Duration
}

func NewJournal(cfg *QueueConfig, ttl time.Duration) *Journal {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Journal{redis: client, ttl: ttl}
}

func (j *Journal) Save(ctx context.Context, outcome models.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if err := j.redis.Set(ctx, journalPrefix+outcome.ItemID, data, j.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, itemID string) (*models.Outcome, error) {
	data, err := j.redis.Get(ctx, journalPrefix+itemID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome from redis: %w", err)
	}

	var outcome models.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &outcome, nil
}

func (j *Journal) Close() error {
	return j.redis.Close()
}
