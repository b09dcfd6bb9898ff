package models

import (
	"context"
	"errors"
	"io"
	"time"
)

// Status is the lifecycle state of one tracked upload.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusPartial   Status = "partial"
	StatusError     Status = "error"
)

// IsTerminal reports whether no further automatic transition can happen.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusError:
		return true
	}
	return false
}

// Opener yields a fresh reader over a file's bytes.
type Opener func(ctx context.Context) (io.ReadCloser, error)

var ErrNoOpener = errors.New("file has no opener")

// File is an immutable handle to a local or remote binary payload.
type File struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Origin string `json:"origin,omitempty"` // path, s3://bucket/key, ...
	Opener Opener `json:"-"`
}

// Open returns a reader over the payload.
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.Opener == nil {
		return nil, ErrNoOpener
	}
	return f.Opener(ctx)
}

// UploadItem is one file's journey through upload, extraction and indexing.
type UploadItem struct {
	ID        string    `json:"id"`
	File      File      `json:"file"`
	Progress  int       `json:"progress"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	RemoteID  string    `json:"remoteId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Outcome is the persisted record of a settled item.
type Outcome struct {
	ItemID    string    `json:"itemId"`
	FileName  string    `json:"fileName"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	RemoteID  string    `json:"remoteId,omitempty"`
	Stage     string    `json:"stage,omitempty"` // failing stage for partial items
	SettledAt time.Time `json:"settledAt"`
}
