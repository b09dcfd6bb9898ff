package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/routes"
	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/service/document"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

func main() {
	apiCfg := config.GetAPIConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(apiCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	svc, closeService := document.GetService(runCtx, log)
	if err := svc.CleanupStaging(); err != nil {
		log.Warn("Failed to clean staging dir", logger.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, handlers.NewHandlers(svc, log), log)

	srv := &http.Server{
		Addr:    apiCfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", apiCfg.ListenAddr), logger.String("api", apiCfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// tearing the pipeline down first ends open event streams
	if err := closeService(); err != nil {
		log.Error("Failed to close service", logger.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
