package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/docapi"
)

func uploading() *models.UploadItem {
	return &models.UploadItem{ID: "item", Status: models.StatusUploading}
}

func TestTransferProgressIsScaledAndMonotonic(t *testing.T) {
	item := uploading()

	assert.True(t, progressed(40).apply(item))
	assert.Equal(t, 20, item.Progress)

	assert.False(t, progressed(30).apply(item), "progress must not go backwards")
	assert.Equal(t, 20, item.Progress)

	assert.True(t, progressed(250).apply(item))
	assert.Equal(t, transferCeiling, item.Progress)
}

func TestTransferSucceededSetsRemoteIDOnce(t *testing.T) {
	item := uploading()
	progressed(100).apply(item)

	assert.True(t, transferred("doc-1").apply(item))
	assert.Equal(t, "doc-1", item.RemoteID)
	assert.Equal(t, transferredMark, item.Progress)
	assert.Equal(t, models.StatusUploading, item.Status)

	assert.False(t, transferred("doc-2").apply(item))
	assert.Equal(t, "doc-1", item.RemoteID)

	assert.False(t, progressed(100).apply(item), "transfer progress is frozen after the transfer")
	assert.False(t, failed("late").apply(item), "a stored document cannot become an error")
}

func TestTerminalTransitions(t *testing.T) {
	tests := []struct {
		name     string
		steps    []transition
		status   models.Status
		errorMsg string
		remoteID string
	}{
		{
			name:   "success",
			steps:  []transition{transferred("doc-1"), extracted(), succeeded()},
			status: models.StatusSuccess, remoteID: "doc-1",
		},
		{
			name:   "extract fails",
			steps:  []transition{transferred("doc-3"), partial(docapi.StageExtract, "bad pdf")},
			status: models.StatusPartial, errorMsg: "Text extraction failed: bad pdf", remoteID: "doc-3",
		},
		{
			name:   "index fails",
			steps:  []transition{transferred("doc-2"), extracted(), partial(docapi.StageIndex, "quota exceeded")},
			status: models.StatusPartial, errorMsg: "Indexing failed: quota exceeded", remoteID: "doc-2",
		},
		{
			name:   "transfer fails",
			steps:  []transition{progressed(30), failed("Upload timed out")},
			status: models.StatusError, errorMsg: "Upload timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := uploading()
			for _, step := range tt.steps {
				assert.True(t, step.apply(item))
			}

			assert.Equal(t, tt.status, item.Status)
			assert.Equal(t, tt.errorMsg, item.Error)
			assert.Equal(t, tt.remoteID, item.RemoteID)
			assert.Equal(t, completedProgress, item.Progress)

			// terminal states never move again
			for _, again := range []transition{progressed(100), transferred("x"), extracted(), succeeded(), failed("x"), partial(docapi.StageIndex, "x")} {
				assert.False(t, again.apply(item))
			}
			assert.Equal(t, tt.status, item.Status)
		})
	}
}

func TestStageTransitionsRequireRemoteID(t *testing.T) {
	item := uploading()

	assert.False(t, extracted().apply(item))
	assert.False(t, succeeded().apply(item))
	assert.False(t, partial(docapi.StageIndex, "x").apply(item))
	assert.False(t, transferred("").apply(item))
	assert.Equal(t, models.StatusUploading, item.Status)
}
