package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/middleware"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	uploads := v1.Group("/uploads")
	{
		uploads.POST("", h.Upload.CreateBatch)
		uploads.GET("", h.Upload.ListUploads)
		uploads.GET("/events", h.Upload.Events)
		uploads.GET("/:id", h.Upload.GetUpload)
		uploads.DELETE("/:id", h.Upload.RemoveUpload)
	}
}
