package docapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/feichai0017/document-ingest/pkg/logger"
)

// Stage names one post-upload remote operation.
type Stage string

const (
	StageExtract Stage = "extract"
	StageIndex   Stage = "index"
)

// Label is the human form used in item error messages.
func (s Stage) Label() string {
	switch s {
	case StageExtract:
		return "Text extraction"
	case StageIndex:
		return "Indexing"
	}
	return string(s)
}

func (s Stage) path(remoteID string) (string, error) {
	id := url.PathEscape(remoteID)
	switch s {
	case StageExtract:
		return "/documents/" + id + "/extract-text?sync=true", nil
	case StageIndex:
		return "/documents/" + id + "/index?sync=true", nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// ParseStage maps a stage name back to a Stage.
func ParseStage(name string) (Stage, error) {
	switch Stage(name) {
	case StageExtract, StageIndex:
		return Stage(name), nil
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// Extract runs synchronous text extraction for an uploaded document.
func (c *Client) Extract(ctx context.Context, remoteID string) error {
	return c.RunStage(ctx, StageExtract, remoteID)
}

// Index runs synchronous chunking and embedding for an extracted document.
func (c *Client) Index(ctx context.Context, remoteID string) error {
	return c.RunStage(ctx, StageIndex, remoteID)
}

// RunStage invokes one stage. The returned *Error carries the server detail.
func (c *Client) RunStage(ctx context.Context, stage Stage, remoteID string) error {
	if remoteID == "" {
		return &Error{Message: "missing document id"}
	}
	path, err := stage.path(remoteID)
	if err != nil {
		return &Error{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return &Error{Message: "invalid request", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Message: "request timed out", Err: err}
		}
		if ctx.Err() != nil {
			return &Error{Message: "request cancelled", Err: err}
		}
		return &Error{Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		message := errorDetail(resp.Body)
		if message == "" {
			message = fmt.Sprintf("%s failed with status %d", stage.Label(), resp.StatusCode)
		}
		c.logger.Warn("Stage failed",
			logger.String("stage", string(stage)),
			logger.DocumentID(remoteID),
			logger.Int("status", resp.StatusCode),
			logger.String("detail", message),
		)
		return &Error{Status: resp.StatusCode, Message: message}
	}

	c.logger.Debug("Stage completed",
		logger.String("stage", string(stage)),
		logger.DocumentID(remoteID),
	)
	return nil
}
