package handlers

import (
	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type Handlers struct {
	Upload *UploadHandler
	Health *HealthHandler
}

func NewHandlers(service document.Ingestor, log logger.Logger) *Handlers {
	return &Handlers{
		Upload: NewUploadHandler(service, log),
		Health: NewHealthHandler(service),
	}
}
