package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks a backing store's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	graph Pinger
}

// NewHealthHandler takes the graph pinger, or nil when no graph is configured.
func NewHealthHandler(graph Pinger) *HealthHandler { return &HealthHandler{graph: graph} }

// GET /healthcheck[?deep=1]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if c.Query("deep") == "" {
		c.String(http.StatusOK, "ok")
		return
	}
	if h.graph == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "neo4j": "unconfigured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.graph.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "neo4j": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "neo4j": "ok"})
}
