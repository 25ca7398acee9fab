package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

type ValidateHandler struct {
	log         *logger.Logger
	consistency *services.ConsistencyService
}

func NewValidateHandler(log *logger.Logger, consistency *services.ConsistencyService) *ValidateHandler {
	return &ValidateHandler{log: log, consistency: consistency}
}

type validateRequest struct {
	Text   string             `json:"text"`
	Claims []domain.FactClaim `json:"claims"`
}

// POST /v1/validate
// Checks explicit claims, or extracts them from free text first.
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	claims := req.Claims
	if len(claims) == 0 {
		if strings.TrimSpace(req.Text) == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_claims", nil)
			return
		}
		extracted, err := h.consistency.ExtractClaims(c.Request.Context(), req.Text)
		if err != nil {
			h.log.Error("ExtractClaims failed", "error", err)
			response.RespondError(c, http.StatusInternalServerError, "claim_extraction_failed", err)
			return
		}
		claims = extracted
	}

	results, err := h.consistency.CheckAll(c.Request.Context(), claims)
	if err != nil {
		h.log.Error("Validate failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "validation_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"results": results})
}
