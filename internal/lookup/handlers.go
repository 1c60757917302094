// Package lookup provides the public address lookup API: per-address
// detail with its reports and threat-intel records, the high-risk list,
// and a format-detection check endpoint.
package lookup

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/4ndersonLin/scamledger/internal/address"
	"github.com/4ndersonLin/scamledger/internal/report"
	"github.com/4ndersonLin/scamledger/internal/threatintel"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// Handler composes the address, report, and threat-intel stores into the
// read-side lookup endpoints.
type Handler struct {
	addresses address.Store
	reports   report.Store
	intel     threatintel.Store
}

// NewHandler creates a new lookup handler.
func NewHandler(addresses address.Store, reports report.Store, intel threatintel.Store) *Handler {
	return &Handler{addresses: addresses, reports: reports, intel: intel}
}

// RegisterRoutes sets up lookup routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/addresses/high-risk", h.HighRisk)
	r.GET("/addresses/:chain/:address", h.Detail)
	r.GET("/check/:address", h.Check)
}

// Detail handles GET /addresses/:chain/:address.
func (h *Handler) Detail(c *gin.Context) {
	ctx := c.Request.Context()

	chainParam := c.Param("chain")
	if !validation.IsValidChain(chainParam) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_chain",
			"message": "Unknown chain identifier",
		})
		return
	}
	chain := validation.Chain(chainParam)
	addr := validation.SanitizeAddress(chain, c.Param("address"))

	agg, err := h.addresses.Get(ctx, chain, addr)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No reports or intelligence for this address",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	rpts, err := h.reports.ListByAggregate(ctx, agg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	public := make([]*report.Public, 0, len(rpts))
	for _, r := range rpts {
		public = append(public, r.ToPublic())
	}

	intel, err := h.intel.GetByAddress(ctx, chain, addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if intel == nil {
		intel = []*threatintel.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      agg,
		"reports":      public,
		"threat_intel": intel,
	})
}

// HighRisk handles GET /addresses/high-risk.
func (h *Handler) HighRisk(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	aggregates, err := h.addresses.ListHighRisk(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"addresses": aggregates,
		"count":     len(aggregates),
	})
}

// Check handles GET /check/:address: detects the chain from the address
// format and returns the aggregate when one exists. Lightweight endpoint
// for wallet integrations that only have the raw address string.
func (h *Handler) Check(c *gin.Context) {
	raw := c.Param("address")
	chain := validation.DetectChain(raw)
	if chain == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unrecognized_address",
			"message": "Address does not match any supported chain format",
		})
		return
	}
	addr := validation.SanitizeAddress(chain, raw)

	agg, err := h.addresses.Get(c.Request.Context(), chain, addr)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"chain":    chain,
				"address":  addr,
				"reported": false,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chain":    chain,
		"address":  addr,
		"reported": true,
		"summary": gin.H{
			"report_count":     agg.ReportCount,
			"risk_score":       agg.RiskScore,
			"risk_level":       agg.RiskLevel,
			"has_threat_intel": agg.HasThreatIntel,
		},
	})
}
