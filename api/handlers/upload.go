package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const eventBuffer = 64

type UploadHandler struct {
	service document.Ingestor
	logger  logger.Logger
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func NewUploadHandler(service document.Ingestor, log logger.Logger) *UploadHandler {
	return &UploadHandler{
		service: service,
		logger:  log.Named("http"),
	}
}

// CreateBatch accepts one or more files in the "files" form field (a single
// "file" field works too) and starts ingesting them.
func (h *UploadHandler) CreateBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := append(form.File["files"], form.File["file"]...)
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	batch, err := h.service.ProcessBatch(c.Request.Context(), files)
	switch {
	case errors.Is(err, document.ErrNoValidFiles):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message":  "No valid files to upload",
			"rejected": batch.Rejected,
		})
		return
	case errors.Is(err, document.ErrServiceClosed):
		h.handleError(c, http.StatusServiceUnavailable, "Service is shutting down", err)
		return
	case err != nil:
		h.handleError(c, http.StatusInternalServerError, "Failed to start uploads", err)
		return
	}

	c.JSON(http.StatusAccepted, batch)
}

func (h *UploadHandler) ListUploads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.service.Items()})
}

func (h *UploadHandler) GetUpload(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, document.ErrNotFound) {
		h.handleError(c, http.StatusNotFound, "Upload not found", nil)
		return
	}
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RemoveUpload cancels and forgets an item. Unknown ids are not an error.
func (h *UploadHandler) RemoveUpload(c *gin.Context) {
	h.service.CancelUpload(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// Events streams a snapshot followed by every item change as server-sent
// events until the client leaves or the service shuts down.
func (h *UploadHandler) Events(c *gin.Context) {
	events, unsubscribe := h.service.Subscribe(eventBuffer)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", gin.H{"items": h.service.Items()})
	c.Writer.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *UploadHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
