// Package source enumerates files to ingest from the local disk or an
// object store bucket.
package source

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/source/minio"
	"github.com/feichai0017/document-ingest/pkg/source/s3"
)

type SourceType string

const (
	SourceTypeLocal SourceType = "local"
	SourceTypeS3    SourceType = "s3"
	SourceTypeMinio SourceType = "minio"
)

// Source lists files whose bytes are fetched lazily through File.Opener.
type Source interface {
	List(ctx context.Context, prefix string) ([]models.File, error)
}

// NewSource creates a bucket backed source. Local sources are built with
// local.New since they need the paths to walk.
func NewSource(ctx context.Context, sourceType SourceType, log logger.Logger) (Source, error) {
	switch sourceType {
	case SourceTypeS3:
		return s3.GetClient(ctx, log)
	case SourceTypeMinio:
		return minio.GetClient(ctx, log)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// ParseSourceType validates a user supplied source name.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(s); t {
	case SourceTypeLocal, SourceTypeS3, SourceTypeMinio:
		return t, nil
	}
	return "", fmt.Errorf("unsupported source type: %s", s)
}
