package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the statistics read models.
type Handler struct {
	service *Service
}

// NewHandler creates a new stats handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up stats routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stats/overview", h.Overview)
	r.GET("/stats/trends", h.Trends)
	r.GET("/stats/breakdown", h.Breakdown)
}

// Overview handles GET /stats/overview.
func (h *Handler) Overview(c *gin.Context) {
	overview, err := h.service.GetOverview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Trends handles GET /stats/trends.
func (h *Handler) Trends(c *gin.Context) {
	trends, err := h.service.GetTrends(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"days":   trendDays,
		"trends": trends,
	})
}

// Breakdown handles GET /stats/breakdown.
func (h *Handler) Breakdown(c *gin.Context) {
	breakdown, err := h.service.GetBreakdown(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, breakdown)
}
