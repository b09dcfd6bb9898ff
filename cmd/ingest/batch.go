package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type fileLister func(ctx context.Context, log logger.Logger) ([]models.File, error)

// batchReport is the --json form of a finished batch.
type batchReport struct {
	Items       []models.UploadItem  `json:"items"`
	Rejected    []document.Rejection `json:"rejected,omitempty"`
	DocumentURL string               `json:"documentUrl,omitempty"`
	Interrupted bool                 `json:"interrupted,omitempty"`
}

// runBatch lists files, ingests them and reports the outcome. SIGINT tears
// the pipeline down: running transfers are aborted without further state
// changes and whatever settled so far is reported.
func runBatch(cmd *cobra.Command, cc *commandContext, list fileLister) error {
	log, err := cc.logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := list(sigCtx, log)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no files found")
	}

	appURL := config.GetAPIConfig().AppURL
	opened := make(chan string, 1)
	navigator := ingest.NavigatorFunc(func(remoteID string) {
		select {
		case opened <- documentURL(appURL, remoteID):
		default:
		}
	})

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	svc, closeFn := document.GetService(runCtx, log, ingest.WithNavigator(navigator))
	closeService := sync.OnceValue(closeFn)
	defer func() {
		if err := closeService(); err != nil {
			log.Warn("Failed to close service", logger.Error(err))
		}
	}()

	stderr := cmd.ErrOrStderr()
	progress := newProgressPrinter(stderr, !cc.jsonOutput && shouldShowLive(stderr))
	events, unsubscribe := svc.Subscribe(64)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			progress.handle(ev)
		}
	}()
	stopProgress := func() {
		unsubscribe()
		<-consumed
		progress.finish()
	}

	batch, err := svc.IngestFiles(sigCtx, files)
	if err != nil {
		stopProgress()
		if batch != nil && len(batch.Rejected) > 0 {
			writeReport(cmd, cc, batchReport{Items: []models.UploadItem{}, Rejected: batch.Rejected})
		}
		return err
	}

	report := batchReport{Rejected: batch.Rejected}
	var result *ingest.BatchResult
	select {
	case result = <-batch.Done:
	case <-sigCtx.Done():
		report.Interrupted = true
		_ = closeService()
		cancelRuns()
		result = <-batch.Done
	}
	stopProgress()

	if result.NavigationTarget != "" {
		select {
		case report.DocumentURL = <-opened:
		case <-sigCtx.Done():
		}
	}
	report.Items = result.Items

	if err := writeReport(cmd, cc, report); err != nil {
		return err
	}
	if report.Interrupted {
		return context.Canceled
	}
	if failed := countIncomplete(report.Items); failed > 0 {
		return fmt.Errorf("%d of %d uploads did not complete", failed, len(report.Items))
	}
	return nil
}

func writeReport(cmd *cobra.Command, cc *commandContext, report batchReport) error {
	if cc.jsonOutput {
		return writeJSON(cmd, report)
	}
	out := cmd.OutOrStdout()
	if len(report.Items) > 0 {
		fmt.Fprintln(out, renderItems(report.Items))
	}
	if len(report.Rejected) > 0 {
		fmt.Fprintln(out, renderRejected(report.Rejected))
	}
	if report.DocumentURL != "" {
		fmt.Fprintf(out, "Open %s\n", report.DocumentURL)
	}
	if report.Interrupted {
		fmt.Fprintln(out, "Interrupted; unfinished uploads were abandoned")
	}
	return nil
}

func countIncomplete(items []models.UploadItem) int {
	n := 0
	for _, item := range items {
		if item.Status != models.StatusSuccess {
			n++
		}
	}
	return n
}
