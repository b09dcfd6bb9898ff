package main

import (
	"sync"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

type commandContext struct {
	verbose    bool
	jsonOutput bool

	logOnce sync.Once
	log     logger.Logger
	logErr  error
}

// logger is built on first use so that flag values are already parsed.
func (c *commandContext) logger() (logger.Logger, error) {
	c.logOnce.Do(func() {
		outputs := []string{"logs/ingest.log"}
		if c.verbose {
			outputs = append(outputs, "stderr")
		}
		c.log, c.logErr = logger.NewLogger(
			logger.WithLevel(config.GetAPIConfig().LogLevel),
			logger.WithEncoding("json"),
			logger.WithOutputPaths(outputs),
		)
	})
	return c.log, c.logErr
}
