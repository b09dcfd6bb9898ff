package config

import (
	"sync"
	"time"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig backs the outcome journal and the stage retry queue.
// An empty Addr disables both.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	JournalTTL  time.Duration
	Concurrency int
	MaxRetry    int
}

func (c *RedisConfig) Enabled() bool {
	return c != nil && c.Addr != ""
}

func LoadRedisConfig() *RedisConfig {
	loadEnv()

	return &RedisConfig{
		Addr:        getString("REDIS_ADDR", ""),
		Password:    getString("REDIS_PASSWORD", ""),
		DB:          getInt("REDIS_DB", 0),
		JournalTTL:  getDuration("INGEST_JOURNAL_TTL", 24*time.Hour),
		Concurrency: getInt("INGEST_WORKER_CONCURRENCY", 5),
		MaxRetry:    getInt("INGEST_RETRY_MAX", 3),
	}
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		redisConfig = LoadRedisConfig()
	})
	return redisConfig
}
