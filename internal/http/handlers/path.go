package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

type PathHandler struct {
	log        *logger.Logger
	pathfinder *services.PathfinderService
	explainer  *services.PathExplainerService
}

func NewPathHandler(log *logger.Logger, pathfinder *services.PathfinderService, explainer *services.PathExplainerService) *PathHandler {
	return &PathHandler{log: log, pathfinder: pathfinder, explainer: explainer}
}

// GET /v1/paths?start=...&end=...&maxHops=3&types=DEVELOPED_BY,BASED_ON&shortest=true&explain=true
func (h *PathHandler) FindPaths(c *gin.Context) {
	start := strings.TrimSpace(c.Query("start"))
	end := strings.TrimSpace(c.Query("end"))
	if start == "" || end == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_endpoints", nil)
		return
	}

	opts := services.PathOptions{}
	if raw := strings.TrimSpace(c.Query("maxHops")); raw != "" {
		hops, err := strconv.Atoi(raw)
		if err != nil || hops < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_max_hops", err)
			return
		}
		if hops == 0 {
			opts.ZeroHops = true
		}
		opts.MaxHops = hops
	}
	if raw := strings.TrimSpace(c.Query("maxPaths")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_max_paths", err)
			return
		}
		opts.MaxPaths = n
	}
	if raw := strings.TrimSpace(c.Query("types")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			rt := domain.RelationType(strings.TrimSpace(part))
			if !domain.ValidRelationType(rt) {
				response.RespondError(c, http.StatusBadRequest, "unknown_relation_type", nil)
				return
			}
			opts.RelationTypes = append(opts.RelationTypes, rt)
		}
	}

	explain := boolQuery(c, "explain")

	if boolQuery(c, "shortest") {
		path, err := h.pathfinder.FindShortestPath(c.Request.Context(), start, end, opts)
		if err != nil {
			h.log.Error("FindShortestPath failed", "error", err, "start", start, "end", end)
			response.RespondError(c, pathStatus(err), "path_search_failed", err)
			return
		}
		payload := gin.H{"path": path}
		if path != nil && explain {
			payload["explanation"] = h.explain(c, *path)
		}
		response.RespondOK(c, payload)
		return
	}

	result, err := h.pathfinder.FindPaths(c.Request.Context(), start, end, opts)
	if err != nil {
		h.log.Error("FindPaths failed", "error", err, "start", start, "end", end)
		response.RespondError(c, pathStatus(err), "path_search_failed", err)
		return
	}
	payload := gin.H{"result": result}
	if explain && len(result.Paths) > 0 {
		explanations := make([]string, 0, len(result.Paths))
		for _, p := range result.Paths {
			explanations = append(explanations, h.explain(c, p))
		}
		payload["explanations"] = explanations
	}
	response.RespondOK(c, payload)
}

func (h *PathHandler) explain(c *gin.Context, path domain.Path) string {
	if h.explainer == nil {
		return ""
	}
	return h.explainer.ExplainWithLLM(c.Request.Context(), path)
}

func pathStatus(err error) int {
	if err != nil && strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func boolQuery(c *gin.Context, name string) bool {
	v := strings.ToLower(strings.TrimSpace(c.Query(name)))
	return v == "1" || v == "true" || v == "yes"
}
