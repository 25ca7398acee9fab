package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

type ReasonHandler struct {
	log      *logger.Logger
	reasoner *services.ReasonerService
}

func NewReasonHandler(log *logger.Logger, reasoner *services.ReasonerService) *ReasonHandler {
	return &ReasonHandler{log: log, reasoner: reasoner}
}

type reasonRequest struct {
	Question        string   `json:"question"`
	EntityIDs       []string `json:"entityIds"`
	MaxSteps        int      `json:"maxSteps"`
	ConfidenceFloor float64  `json:"confidenceFloor"`
}

// POST /v1/reason
func (h *ReasonHandler) Reason(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_question", nil)
		return
	}

	result, err := h.reasoner.Reason(c.Request.Context(), req.Question, services.ReasonOptions{
		EntityIDs:       req.EntityIDs,
		MaxSteps:        req.MaxSteps,
		ConfidenceFloor: req.ConfidenceFloor,
	})
	if err != nil {
		h.log.Error("Reason failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "reasoning_failed", err)
		return
	}
	response.RespondOK(c, result)
}
