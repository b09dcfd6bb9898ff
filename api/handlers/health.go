package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/internal/service/document"
)

type HealthHandler struct {
	service document.Ingestor
}

func NewHealthHandler(service document.Ingestor) *HealthHandler {
	return &HealthHandler{service: service}
}

func (h *HealthHandler) Check(c *gin.Context) {
	counts := map[models.Status]int{}
	for _, item := range h.service.Items() {
		counts[item.Status]++
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"items":  counts,
	})
}
