package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/document"
)

func renderItems(items []models.UploadItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.File.Name,
			formatSize(item.File.Size),
			string(item.Status),
			fmt.Sprintf("%d%%", item.Progress),
			valueOrDash(item.RemoteID),
			valueOrDash(item.Error),
		})
	}
	return renderTable(
		[]string{"ID", "File", "Size", "Status", "Progress", "Document", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	)
}

func renderRejected(rejected []document.Rejection) string {
	rows := make([][]string, 0, len(rejected))
	for _, r := range rejected {
		rows = append(rows, []string{r.Filename, r.Error})
	}
	return renderTable([]string{"Rejected", "Reason"}, rows, nil)
}

func renderStatus(itemID string, status *document.Status) string {
	rows := [][]string{{"ID", itemID}}

	switch {
	case status.Item != nil:
		item := status.Item
		rows = append(rows,
			[]string{"File", item.File.Name},
			[]string{"Size", formatSize(item.File.Size)},
			[]string{"Status", string(item.Status)},
			[]string{"Progress", fmt.Sprintf("%d%%", item.Progress)},
			[]string{"Document", valueOrDash(item.RemoteID)},
			[]string{"Error", valueOrDash(item.Error)},
		)
	case status.Outcome != nil:
		outcome := status.Outcome
		rows = append(rows,
			[]string{"File", outcome.FileName},
			[]string{"Status", string(outcome.Status)},
			[]string{"Document", valueOrDash(outcome.RemoteID)},
			[]string{"Failed stage", valueOrDash(outcome.Stage)},
			[]string{"Error", valueOrDash(outcome.Error)},
			[]string{"Settled", formatWhen(outcome.SettledAt)},
		)
	}

	if retry := status.Retry; retry != nil {
		rows = append(rows, []string{"Retry", fmt.Sprintf("%s (%d/%d)", retry.Status, retry.Retried, retry.MaxRetry)})
		if retry.Error != "" {
			rows = append(rows, []string{"Retry error", retry.Error})
		}
	}

	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func documentURL(appURL, remoteID string) string {
	return strings.TrimRight(appURL, "/") + "/documents/" + remoteID
}

func formatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.Time(t))
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func shouldShowLive(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
