package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scigraph/scigraph-backend/internal/data/repos"
	"github.com/scigraph/scigraph-backend/internal/domain"
	"github.com/scigraph/scigraph-backend/internal/http/response"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/services"
)

const maxBatchDocuments = 200

type ExtractionHandler struct {
	log        *logger.Logger
	extraction *services.ExtractionService
	documents  repos.DocumentRepo
	runs       repos.ExtractionRunRepo
}

func NewExtractionHandler(log *logger.Logger, extraction *services.ExtractionService, documents repos.DocumentRepo, runs repos.ExtractionRunRepo) *ExtractionHandler {
	return &ExtractionHandler{log: log, extraction: extraction, documents: documents, runs: runs}
}

// storeIntake persists submitted documents before extraction. Best-effort:
// a dead document store does not block the pipeline.
func (h *ExtractionHandler) storeIntake(c *gin.Context, docs []domain.Document) {
	if h.documents == nil {
		return
	}
	rows := make([]*domain.DocumentRow, 0, len(docs))
	for _, doc := range docs {
		row, err := repos.FromDocument(doc)
		if err != nil {
			h.log.Warn("Document not stored", "doc_id", doc.ID, "error", err)
			continue
		}
		row.Processed = true
		rows = append(rows, row)
	}
	if err := h.documents.Create(c.Request.Context(), rows); err != nil {
		h.log.Warn("Document intake store failed", "count", len(rows), "error", err)
	}
}

// POST /v1/extract
func (h *ExtractionHandler) Extract(c *gin.Context) {
	var doc domain.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document", err)
		return
	}
	if strings.TrimSpace(doc.Content) == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_content", nil)
		return
	}
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = uuid.NewString()
	}
	h.storeIntake(c, []domain.Document{doc})

	result, err := h.extraction.Extract(c.Request.Context(), doc)
	if err != nil {
		h.log.Error("Extract failed", "error", err, "doc_id", doc.ID)
		response.RespondError(c, http.StatusInternalServerError, "extraction_failed", err)
		return
	}
	response.RespondOK(c, result)
}

type batchExtractRequest struct {
	Documents []domain.Document `json:"documents"`
}

// POST /v1/extract/batch
func (h *ExtractionHandler) ExtractBatch(c *gin.Context) {
	var req batchExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_batch", err)
		return
	}
	if len(req.Documents) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", nil)
		return
	}
	if len(req.Documents) > maxBatchDocuments {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "batch_too_large", nil)
		return
	}
	for i := range req.Documents {
		if strings.TrimSpace(req.Documents[i].ID) == "" {
			req.Documents[i].ID = uuid.NewString()
		}
	}
	h.storeIntake(c, req.Documents)

	batch, err := h.extraction.ExtractBatch(c.Request.Context(), req.Documents)
	if err != nil {
		h.log.Error("ExtractBatch failed", "error", err, "size", len(req.Documents))
		response.RespondError(c, http.StatusInternalServerError, "batch_extraction_failed", err)
		return
	}
	response.RespondOK(c, batch)
}

// GET /v1/stats
func (h *ExtractionHandler) Stats(c *gin.Context) {
	payload := gin.H{"pipeline": h.extraction.Stats()}
	if h.runs != nil {
		recent, err := h.runs.Recent(c.Request.Context(), 20)
		if err != nil {
			h.log.Warn("Recent runs unavailable", "error", err)
		} else {
			payload["recentRuns"] = recent
		}
	}
	response.RespondOK(c, payload)
}
