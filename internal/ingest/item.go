package ingest

import (
	"fmt"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/docapi"
)

// Progress checkpoints. The raw transfer occupies [0, transferCeiling].
const (
	transferCeiling   = 50
	transferredMark   = 60
	extractedMark     = 80
	completedProgress = 100
)

type transitionKind int

const (
	transferProgressed transitionKind = iota
	transferSucceeded
	extractSucceeded
	itemSucceeded
	itemPartial
	itemFailed
)

// transition is one event applied to an item. apply rejects anything that
// would leave a terminal status or overwrite a remote id.
type transition struct {
	kind     transitionKind
	percent  int
	remoteID string
	stage    docapi.Stage
	message  string
}

func progressed(percent int) transition { return transition{kind: transferProgressed, percent: percent} }

func transferred(remoteID string) transition {
	return transition{kind: transferSucceeded, remoteID: remoteID}
}

func extracted() transition { return transition{kind: extractSucceeded} }

func succeeded() transition { return transition{kind: itemSucceeded} }

func partial(stage docapi.Stage, detail string) transition {
	return transition{kind: itemPartial, stage: stage, message: fmt.Sprintf("%s failed: %s", stage.Label(), detail)}
}

func failed(message string) transition { return transition{kind: itemFailed, message: message} }

func (t transition) apply(item *models.UploadItem) bool {
	if item.Status != models.StatusUploading {
		return false
	}

	switch t.kind {
	case transferProgressed:
		if item.RemoteID != "" {
			return false
		}
		return advance(item, scaleTransfer(t.percent))

	case transferSucceeded:
		if item.RemoteID != "" || t.remoteID == "" {
			return false
		}
		item.RemoteID = t.remoteID
		advance(item, transferredMark)
		return true

	case extractSucceeded:
		if item.RemoteID == "" {
			return false
		}
		return advance(item, extractedMark)

	case itemSucceeded:
		if item.RemoteID == "" {
			return false
		}
		item.Status = models.StatusSuccess
		item.Error = ""

	case itemPartial:
		if item.RemoteID == "" {
			return false
		}
		item.Status = models.StatusPartial
		item.Error = t.message

	case itemFailed:
		if item.RemoteID != "" {
			return false
		}
		item.Status = models.StatusError
		item.Error = t.message

	default:
		return false
	}

	item.Progress = completedProgress
	return true
}

func scaleTransfer(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent * transferCeiling / 100
}

// advance moves progress forward only.
func advance(item *models.UploadItem, to int) bool {
	if to <= item.Progress {
		return false
	}
	item.Progress = to
	return true
}
