package handlers_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/routes"
	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/internal/testutil"
	"github.com/feichai0017/document-ingest/internal/utils/validator"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type gatedTransfer struct {
	release chan struct{}
}

func (g *gatedTransfer) Upload(ctx context.Context, file models.File, progress docapi.ProgressFunc, _ time.Duration) (*docapi.UploadResult, error) {
	progress(50)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, docapi.ErrCanceled
	}
	return &docapi.UploadResult{DocumentID: "doc-" + file.Name}, nil
}

type okStages struct{}

func (okStages) RunStage(context.Context, docapi.Stage, string) error { return nil }

type testServer struct {
	router  *gin.Engine
	service *document.DocumentService
	gate    *gatedTransfer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate := &gatedTransfer{release: make(chan struct{})}
	pipeline := ingest.New(gate, okStages{}, ingest.Config{}, logger.NewNop())
	svc := document.NewService(context.Background(), pipeline,
		validator.NewDocumentValidator(logger.NewNop(), nil),
		logger.NewNop(),
		&document.ServiceConfig{StagingDir: t.TempDir()},
	)
	t.Cleanup(svc.Close)

	r := gin.New()
	routes.SetupRoutes(r, handlers.NewHandlers(svc, logger.NewNop()), logger.NewNop())
	return &testServer{router: r, service: svc, gate: gate}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateBatchAndLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, map[string][]byte{"a.pdf": testutil.MinimalPDF(1)}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var batch document.Batch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Items, 1)
	id := batch.Items[0].ItemID
	assert.Equal(t, "a.pdf", batch.Items[0].Filename)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status document.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.Item)
	assert.Equal(t, models.StatusUploading, status.Item.Status)

	close(s.gate.release)
	require.Eventually(t, func() bool {
		st, err := s.service.GetStatus(context.Background(), id)
		return err == nil && st.Item.Status == models.StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remoteId":"doc-a.pdf"`)

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code, "removal is idempotent")

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBatchRejectsInvalidFiles(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, map[string][]byte{"notes.txt": []byte("hi")}))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid file type: only PDF files are accepted")
	assert.Empty(t, s.service.Items())
}

func TestCreateBatchWithoutFiles(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveDuringTransfer(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, map[string][]byte{"a.pdf": testutil.MinimalPDF(1)}))
	require.Equal(t, http.StatusAccepted, w.Code)
	var batch document.Batch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+batch.Items[0].ItemID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.service.Items())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/uploads/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	expectEvent := func(name string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended before %s", name)
				if line == "event:"+name {
					return
				}
			case <-deadline:
				t.Fatalf("no %s event", name)
			}
		}
	}

	expectEvent("snapshot")

	w := s.do(uploadRequest(t, map[string][]byte{"a.pdf": testutil.MinimalPDF(1)}))
	require.Equal(t, http.StatusAccepted, w.Code)
	expectEvent(string(ingest.EventItemUpdated))

	s.service.Close()
	for range lines {
	}
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
}
