package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/source"
)

func newBucketCommand(ctx *commandContext) *cobra.Command {
	var sourceFlag string
	var prefix string

	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Upload every object under a bucket prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceType, err := source.ParseSourceType(sourceFlag)
			if err != nil {
				return err
			}
			if sourceType == source.SourceTypeLocal {
				return errors.New("use 'ingest upload' for local files")
			}
			return runBatch(cmd, ctx, func(c context.Context, log logger.Logger) ([]models.File, error) {
				src, err := source.NewSource(c, sourceType, log)
				if err != nil {
					return nil, fmt.Errorf("failed to open %s source: %w", sourceType, err)
				}
				return src.List(c, prefix)
			})
		},
	}

	cmd.Flags().StringVar(&sourceFlag, "source", string(source.SourceTypeS3), "Object store to read from (s3 or minio)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only upload keys with this prefix")
	return cmd
}
