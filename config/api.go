package config

import (
	"strings"
	"sync"
	"time"
)

var (
	apiOnce   sync.Once
	apiConfig *APIConfig
)

// APIConfig describes the remote documents API and the client-side pipeline knobs.
type APIConfig struct {
	BaseURL       string
	AppURL        string
	AuthToken     string
	UploadTimeout time.Duration
	StageTimeout  time.Duration
	NavigateDelay time.Duration
	MaxConcurrent int
	MaxFileSize   int64
	AllowedTypes  []string
	StagingDir    string
	ListenAddr    string
	LogLevel      string
}

// LoadAPIConfig reads the API configuration from the environment without caching.
func LoadAPIConfig() *APIConfig {
	loadEnv()

	return &APIConfig{
		BaseURL:       strings.TrimRight(getString("INGEST_API_URL", "http://localhost:8000/api/v1"), "/"),
		AppURL:        strings.TrimRight(getString("INGEST_APP_URL", "http://localhost:3000"), "/"),
		AuthToken:     getString("INGEST_AUTH_TOKEN", ""),
		UploadTimeout: getDuration("INGEST_UPLOAD_TIMEOUT", 10*time.Minute),
		StageTimeout:  getDuration("INGEST_STAGE_TIMEOUT", 5*time.Minute),
		NavigateDelay: getDuration("INGEST_NAVIGATE_DELAY", 1500*time.Millisecond),
		MaxConcurrent: getInt("INGEST_MAX_CONCURRENT", 0),
		MaxFileSize:   int64(getInt("INGEST_MAX_FILE_SIZE_MB", 50)) * 1024 * 1024,
		AllowedTypes:  getList("INGEST_ALLOWED_TYPES", []string{".pdf"}),
		StagingDir:    getString("INGEST_STAGING_DIR", ""),
		ListenAddr:    getString("INGEST_LISTEN_ADDR", ":8080"),
		LogLevel:      getString("INGEST_LOG_LEVEL", "info"),
	}
}

func GetAPIConfig() *APIConfig {
	apiOnce.Do(func() {
		apiConfig = LoadAPIConfig()
	})
	return apiConfig
}
