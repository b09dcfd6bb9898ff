package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <item-id>",
		Short: "Show the recorded outcome of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if !config.GetRedisConfig().Enabled() {
				return errors.New("REDIS_ADDR is required to look up past uploads")
			}

			svc, closeService := document.GetService(context.Background(), log)
			defer func() {
				if err := closeService(); err != nil {
					log.Warn("Failed to close service", logger.Error(err))
				}
			}()

			status, err := svc.GetStatus(cmd.Context(), args[0])
			if errors.Is(err, document.ErrNotFound) {
				return fmt.Errorf("upload %s not found", args[0])
			}
			if err != nil {
				return err
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(args[0], status))
			return nil
		},
	}
}
