package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/source/local"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload local files or directories",
		Long:  "Upload local files, or every file under the given directories, then extract and index them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, func(c context.Context, log logger.Logger) ([]models.File, error) {
				return local.New(args, log).List(c, "")
			})
		},
	}
}
