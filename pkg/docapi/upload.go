package docapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// UploadResult is the server's answer to POST /documents/upload.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
}

// ProgressFunc receives a non-decreasing percentage of bytes sent.
type ProgressFunc func(percent int)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one file as a multipart body. Cancelling ctx aborts the
// transfer and yields ErrCanceled; timeout, when positive, bounds the whole
// request and yields a status 0 *Error.
func (c *Client) Upload(ctx context.Context, file models.File, progress ProgressFunc, timeout time.Duration) (*UploadResult, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	src, err := file.Open(ctx)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("Could not read %s", file.Name), Err: err}
	}
	defer src.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
		header.Set("Content-Type", contentType(file.Name))

		part, err := form.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, newProgressReader(src, file.Size, progress)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", pr)
	if err != nil {
		return nil, &Error{Message: "Upload failed: invalid request", Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(parent, ctx, file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		message := errorDetail(resp.Body)
		if message == "" {
			message = fmt.Sprintf("Upload failed with status %d", resp.StatusCode)
		}
		c.logger.Warn("Upload rejected",
			logger.String("filename", file.Name),
			logger.Int("status", resp.StatusCode),
			logger.String("detail", message),
		)
		return nil, &Error{Status: resp.StatusCode, Message: message}
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctxErr := c.classifyContext(parent, ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Status: resp.StatusCode, Message: "Upload failed: unreadable server response", Err: err}
	}
	if result.DocumentID == "" {
		return nil, &Error{Status: resp.StatusCode, Message: "Upload failed: server returned no document id"}
	}
	if result.Filename == "" {
		result.Filename = file.Name
	}

	c.logger.Debug("Upload completed",
		logger.String("filename", file.Name),
		logger.DocumentID(result.DocumentID),
	)
	return &result, nil
}

func (c *Client) classify(parent, ctx context.Context, file models.File, err error) error {
	if ctxErr := c.classifyContext(parent, ctx); ctxErr != nil {
		return ctxErr
	}
	c.logger.Warn("Upload transport failure",
		logger.String("filename", file.Name),
		logger.Error(err),
	)
	return &Error{Message: "Network error: could not reach the server", Err: err}
}

func (c *Client) classifyContext(parent, ctx context.Context) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, parent.Err())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Message: "Upload timed out", Err: ctx.Err()}
	}
	return nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// progressReader reports bytes-read as a percentage of total.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
	mu     sync.Mutex
}

func newProgressReader(r io.Reader, total int64, report ProgressFunc) io.Reader {
	if report == nil || total <= 0 {
		return r
	}
	return &progressReader{r: r, total: total, last: -1, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		emit := pct > p.last
		if emit {
			p.last = pct
		}
		p.mu.Unlock()
		if emit {
			p.report(pct)
		}
	}
	return n, err
}
