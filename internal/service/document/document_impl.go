package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/utils/validator"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

// OutcomeLookup reads journaled outcomes.
type OutcomeLookup interface {
	Get(ctx context.Context, itemID string) (*models.Outcome, error)
}

// RetryLookup reads the state of queued stage retries.
type RetryLookup interface {
	GetTaskStatus(ctx context.Context, itemID string) (*queue.TaskStatus, error)
}

type DocumentService struct {
	pipeline  *ingest.Orchestrator
	validator *validator.DocumentValidator
	journal   OutcomeLookup
	retries   RetryLookup
	logger    logger.Logger
	config    *ServiceConfig

	// runs outlive the request that started them
	runCtx context.Context
}

type ServiceConfig struct {
	StagingDir      string
	MaxFileSize     int64
	RetentionPeriod time.Duration
}

type Option func(*DocumentService)

func WithJournal(j OutcomeLookup) Option {
	return func(s *DocumentService) { s.journal = j }
}

func WithRetries(r RetryLookup) Option {
	return func(s *DocumentService) { s.retries = r }
}

func NewService(
	runCtx context.Context,
	pipeline *ingest.Orchestrator,
	v *validator.DocumentValidator,
	log logger.Logger,
	cfg *ServiceConfig,
	opts ...Option,
) *DocumentService {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "document-ingest")
	}
	if cfg.RetentionPeriod == 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}

	s := &DocumentService{
		pipeline:  pipeline,
		validator: v,
		logger:    log.Named("service"),
		config:    cfg,
		runCtx:    runCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessBatch stages multipart uploads on disk and ingests them. Staged
// copies are deleted once the batch settles.
func (s *DocumentService) ProcessBatch(ctx context.Context, headers []*multipart.FileHeader) (*Batch, error) {
	if s.pipeline.Closed() {
		return nil, ErrServiceClosed
	}

	if err := os.MkdirAll(s.config.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.config.StagingDir, "batch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove staged files", logger.String("dir", dir), logger.Error(err))
		}
	}

	files := make([]models.File, 0, len(headers))
	for i, header := range headers {
		file, err := s.stage(dir, i, header)
		if err != nil {
			cleanup()
			return nil, err
		}
		files = append(files, file)
	}

	batch, err := s.IngestFiles(ctx, files)
	if err != nil {
		cleanup()
		return batch, err
	}

	done := make(chan *ingest.BatchResult, 1)
	go func() {
		defer close(done)
		result, ok := <-batch.Done
		cleanup()
		if ok {
			done <- result
		}
	}()
	batch.Done = done
	return batch, nil
}

func (s *DocumentService) stage(dir string, index int, header *multipart.FileHeader) (models.File, error) {
	src, err := header.Open()
	if err != nil {
		return models.File{}, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer src.Close()

	path := filepath.Join(dir, fmt.Sprintf("%03d-%s", index, filepath.Base(header.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return models.File{}, fmt.Errorf("failed to stage %s: %w", header.Filename, err)
	}
	defer dst.Close()

	var r io.Reader = src
	if s.config.MaxFileSize > 0 {
		// one byte over is enough for the size check to fire
		r = io.LimitReader(src, s.config.MaxFileSize+1)
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		return models.File{}, fmt.Errorf("failed to stage %s: %w", header.Filename, err)
	}

	return models.File{
		Name:   header.Filename,
		Size:   n,
		Origin: path,
		Opener: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// IngestFiles applies the accept policy and starts a batch with the files
// that pass. Rejected files never become items.
func (s *DocumentService) IngestFiles(ctx context.Context, files []models.File) (*Batch, error) {
	if s.pipeline.Closed() {
		return nil, ErrServiceClosed
	}

	accepted, rejected := s.validator.Partition(ctx, files)
	batch := &Batch{Items: []BatchEntry{}}
	for _, r := range rejected {
		batch.Rejected = append(batch.Rejected, Rejection{Filename: r.File.Name, Error: r.Reason})
	}

	if len(accepted) == 0 {
		s.logger.Info("Nothing to upload", logger.Int("rejected", len(batch.Rejected)))
		return batch, ErrNoValidFiles
	}

	ids, done := s.pipeline.Start(s.runCtx, accepted)
	if len(ids) == 0 {
		return batch, ErrServiceClosed
	}
	for i, id := range ids {
		batch.Items = append(batch.Items, BatchEntry{ItemID: id, Filename: accepted[i].Name})
	}
	batch.Done = done

	s.logger.Info("Batch started",
		logger.Int("accepted", len(ids)),
		logger.Int("rejected", len(batch.Rejected)),
	)
	return batch, nil
}

// GetStatus looks the item up in the live set first and falls back to the
// journal for items from earlier runs.
func (s *DocumentService) GetStatus(ctx context.Context, itemID string) (*Status, error) {
	status := &Status{}

	if item, ok := s.pipeline.Item(itemID); ok {
		status.Item = &item
	} else if s.journal != nil {
		outcome, err := s.journal.Get(ctx, itemID)
		switch {
		case errors.Is(err, queue.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to get outcome: %w", err)
		default:
			status.Outcome = outcome
		}
	}

	if s.retries != nil {
		if retry, err := s.retries.GetTaskStatus(ctx, itemID); err == nil {
			status.Retry = retry
		}
	}

	if status.Item == nil && status.Outcome == nil {
		return nil, ErrNotFound
	}
	return status, nil
}

// CancelUpload removes the item, aborting its transfer if still running.
func (s *DocumentService) CancelUpload(_ context.Context, itemID string) bool {
	removed := s.pipeline.Remove(itemID)
	if removed {
		s.logger.Info("Upload removed", logger.ItemID(itemID))
	}
	return removed
}

func (s *DocumentService) Items() []models.UploadItem {
	return s.pipeline.Items()
}

func (s *DocumentService) Subscribe(buffer int) (<-chan ingest.Event, func()) {
	return s.pipeline.Subscribe(buffer)
}

func (s *DocumentService) Close() {
	s.pipeline.Close()
}

// CleanupStaging removes staged batches older than the retention period,
// left behind by a previous process that did not shut down cleanly.
func (s *DocumentService) CleanupStaging() error {
	entries, err := os.ReadDir(s.config.StagingDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read staging dir: %w", err)
	}

	threshold := time.Now().Add(-s.config.RetentionPeriod)
	var removed []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		path := filepath.Join(s.config.StagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("Failed to remove expired staging entry", logger.String("path", path), logger.Error(err))
			continue
		}
		removed = append(removed, entry.Name())
	}

	sort.Strings(removed)
	s.logger.Info("Completed staging cleanup",
		logger.Time("threshold", threshold),
		logger.Strings("removed", removed),
	)
	return nil
}
