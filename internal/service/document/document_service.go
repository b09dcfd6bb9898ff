package document

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

var (
	ErrNotFound      = errors.New("upload not found")
	ErrNoValidFiles  = errors.New("no valid files to upload")
	ErrServiceClosed = errors.New("ingest service is closed")
)

// Ingestor is the surface shared by the HTTP server and the CLI.
type Ingestor interface {
	ProcessBatch(ctx context.Context, headers []*multipart.FileHeader) (*Batch, error)
	IngestFiles(ctx context.Context, files []models.File) (*Batch, error)
	GetStatus(ctx context.Context, itemID string) (*Status, error)
	CancelUpload(ctx context.Context, itemID string) bool
	Items() []models.UploadItem
	Subscribe(buffer int) (<-chan ingest.Event, func())
	Close()
}

// Rejection is a file the accept policy turned away before any upload.
type Rejection struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type BatchEntry struct {
	ItemID   string `json:"id"`
	Filename string `json:"filename"`
}

// Batch describes a started batch. Done yields the settled result once.
type Batch struct {
	Items    []BatchEntry               `json:"items"`
	Rejected []Rejection                `json:"rejected,omitempty"`
	Done     <-chan *ingest.BatchResult `json:"-"`
}

// Status is what is known about one item: the live item while it is tracked,
// otherwise the journaled outcome, plus the retry task if one exists.
type Status struct {
	Item    *models.UploadItem `json:"item,omitempty"`
	Outcome *models.Outcome    `json:"outcome,omitempty"`
	Retry   *queue.TaskStatus  `json:"retry,omitempty"`
}
