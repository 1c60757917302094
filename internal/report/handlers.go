package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/4ndersonLin/scamledger/internal/ratelimit"
)

// Handler provides HTTP endpoints for report submission.
type Handler struct {
	service *Service
}

// NewHandler creates a new report handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up report routes under the given group. Submission
// gets its own tighter rate limit on top of the global one.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reports", ratelimit.MiddlewareWithConfig(ratelimit.SubmitConfig()), h.Submit)
	r.GET("/reports/recent", h.Recent)
}

// Submit handles POST /reports.
func (h *Handler) Submit(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	source := SourceWeb
	apiKeyID := c.GetString("apiKeyID")
	if apiKeyID != "" {
		source = SourceAPI
	}

	pub, err := h.service.Submit(c.Request.Context(), &in, c.ClientIP(), c.Request.UserAgent(), source, apiKeyID)
	if err != nil {
		var verr *ValidationErrors
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "Report submission is invalid",
				"details": verr.Violations,
			})
		case errors.Is(err, ErrDuplicateReport):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_report",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": pub})
}

// Recent handles GET /reports/recent.
func (h *Handler) Recent(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	reports, err := h.service.GetRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}
