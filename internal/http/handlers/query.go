package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

type QueryHandler struct {
	log     *logger.Logger
	nlquery *services.NLQueryService
}

func NewQueryHandler(log *logger.Logger, nlquery *services.NLQueryService) *QueryHandler {
	return &QueryHandler{log: log, nlquery: nlquery}
}

type queryRequest struct {
	Question string `json:"question"`
}

// POST /v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_question", nil)
		return
	}

	result, err := h.nlquery.Query(c.Request.Context(), req.Question)
	if err != nil {
		h.log.Error("Query failed", "error", err)
		status := http.StatusInternalServerError
		code := "query_failed"
		if strings.Contains(err.Error(), "stage=parse") {
			status = http.StatusUnprocessableEntity
			code = "query_parse_failed"
		}
		response.RespondError(c, status, code, err)
		return
	}
	response.RespondOK(c, result)
}
