package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

type NormalizeHandler struct {
	log        *logger.Logger
	normalizer *services.NormalizerService
}

func NewNormalizeHandler(log *logger.Logger, normalizer *services.NormalizerService) *NormalizeHandler {
	return &NormalizeHandler{log: log, normalizer: normalizer}
}

type normalizeRequest struct {
	Surface    string            `json:"surface"`
	Surfaces   []string          `json:"surfaces"`
	EntityType domain.EntityType `json:"entityType"`
	Context    string            `json:"context"`
	SkipLLM    bool              `json:"skipLlm"`
}

// POST /v1/normalize
func (h *NormalizeHandler) Normalize(c *gin.Context) {
	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Surface == "" && len(req.Surfaces) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_surface", nil)
		return
	}

	opts := services.NormalizeOptions{
		EntityType: req.EntityType,
		Context:    req.Context,
		SkipLLM:    req.SkipLLM,
	}

	if len(req.Surfaces) > 0 {
		results, err := h.normalizer.NormalizeAll(c.Request.Context(), req.Surfaces, opts)
		if err != nil {
			h.log.Error("NormalizeAll failed", "error", err)
			response.RespondError(c, http.StatusInternalServerError, "normalization_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"results": results})
		return
	}

	result, err := h.normalizer.Normalize(c.Request.Context(), req.Surface, opts)
	if err != nil {
		h.log.Error("Normalize failed", "error", err, "surface", req.Surface)
		response.RespondError(c, http.StatusInternalServerError, "normalization_failed", err)
		return
	}
	response.RespondOK(c, result)
}
