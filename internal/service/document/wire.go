package document

import (
	"context"
	"errors"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/utils/validator"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

// GetService wires the service from the environment. Redis backed outcome
// journaling and stage retries are enabled when REDIS_ADDR is set. The
// returned close function tears the pipeline down and releases connections.
func GetService(runCtx context.Context, log logger.Logger, pipelineOpts ...ingest.Option) (*DocumentService, func() error) {
	apiCfg := config.GetAPIConfig()
	redisCfg := config.GetRedisConfig()

	client := docapi.NewClient(docapi.Config{
		BaseURL:   apiCfg.BaseURL,
		AuthToken: apiCfg.AuthToken,
	}, log.Named("docapi"))

	var (
		serviceOpts []Option
		closers     []func() error
	)
	if redisCfg.Enabled() {
		queueCfg := &queue.QueueConfig{
			RedisAddr:      redisCfg.Addr,
			RedisPassword:  redisCfg.Password,
			RedisDB:        redisCfg.DB,
			MaxRetries:     redisCfg.MaxRetry,
			ProcessTimeout: 2 * apiCfg.StageTimeout,
		}
		journal := queue.NewJournal(queueCfg, redisCfg.JournalTTL)
		retries := queue.NewAsynqQueue(queueCfg)

		pipelineOpts = append(pipelineOpts, ingest.WithOutcomeSink(queue.NewRecorder(journal, retries, log)))
		serviceOpts = append(serviceOpts, WithJournal(journal), WithRetries(retries))
		closers = append(closers, journal.Close, retries.Close)

		log.Info("Outcome journal enabled", logger.String("redis", redisCfg.Addr))
	}

	pipeline := ingest.New(client, client, ingest.Config{
		UploadTimeout: apiCfg.UploadTimeout,
		StageTimeout:  apiCfg.StageTimeout,
		NavigateDelay: apiCfg.NavigateDelay,
		MaxConcurrent: apiCfg.MaxConcurrent,
	}, log, pipelineOpts...)

	svc := NewService(runCtx, pipeline,
		validator.NewDocumentValidator(log, validator.ConfigFor(apiCfg.MaxFileSize, apiCfg.AllowedTypes)),
		log,
		&ServiceConfig{StagingDir: apiCfg.StagingDir, MaxFileSize: apiCfg.MaxFileSize},
		serviceOpts...,
	)

	closeFn := func() error {
		svc.Close()
		errs := make([]error, 0, len(closers))
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return svc, closeFn
}
