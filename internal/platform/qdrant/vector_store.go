package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scigraph/scigraph-backend/internal/platform/ctxutil"
	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

const (
	payloadVectorIDKey = "_sg_vector_id"
	maxErrorBodyBytes  = 1024
)

// Qdrant point ids must be UUIDs; non-UUID ids are hashed under this
// namespace and the original kept in the payload.
var pointIDNamespaceUUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Vector is one point to store: a stable string id, the embedding, and an
// open payload.
type Vector struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// Match is one search hit, scored by cosine similarity.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Point is a fetched vector with its payload.
type Point struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// VectorStore is the typed surface over the cosine-similarity index.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, vectors []Vector) error
	Search(ctx context.Context, query []float32, topK int, filter map[string]any, scoreThreshold float64) ([]Match, error)
	Fetch(ctx context.Context, ids []string) ([]Point, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, ids []string) error
}

type vectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &vectorStore{
		log:     log.With("client", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: envutil.Seconds("QDRANT_TIMEOUT_SECONDS", 5*time.Second),
		},
	}
	log.Info("qdrant vector store configured",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return s, nil
}

func (s *vectorStore) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		if size := info.Config.Params.Vectors.Size; size != 0 && size != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size), nil)
		}
		return nil
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.StatusCode != http.StatusNotFound {
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil)
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		vectorID := strings.TrimSpace(v.ID)
		if vectorID == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("vector %q has empty values", vectorID), nil)
		}
		if s.cfg.VectorDim > 0 && len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", vectorID, s.cfg.VectorDim, len(v.Values)), nil)
		}
		payload := clonePayload(v.Payload)
		payload[payloadVectorIDKey] = vectorID
		points = append(points, map[string]any{
			"id":      s.pointID(vectorID),
			"vector":  v.Values,
			"payload": payload,
		})
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s *vectorStore) Search(ctx context.Context, query []float32, topK int, filter map[string]any, scoreThreshold float64) ([]Match, error) {
	const op = "search"
	if len(query) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(query) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query)), nil)
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if scoreThreshold > 0 {
		req["score_threshold"] = scoreThreshold
	}
	if qf := translateFilter(filter); qf != nil {
		req["filter"] = qf
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(rawResults))
	for _, item := range rawResults {
		id := extractVectorID(item.Payload, item.ID)
		if id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: item.Score, Payload: item.Payload})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) Fetch(ctx context.Context, ids []string) ([]Point, error) {
	const op = "fetch"
	if len(ids) == 0 {
		return []Point{}, nil
	}

	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if v := strings.TrimSpace(id); v != "" {
			pointIDs = append(pointIDs, s.pointID(v))
		}
	}
	req := map[string]any{
		"ids":          pointIDs,
		"with_payload": true,
		"with_vector":  true,
	}

	var rawPoints []struct {
		ID      json.RawMessage `json:"id"`
		Vector  []float32       `json:"vector"`
		Payload map[string]any  `json:"payload"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points"), req, &rawPoints); err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(rawPoints))
	for _, p := range rawPoints {
		id := extractVectorID(p.Payload, p.ID)
		if id == "" {
			continue
		}
		out = append(out, Point{ID: id, Values: p.Vector, Payload: p.Payload})
	}
	return out, nil
}

func (s *vectorStore) Count(ctx context.Context) (int, error) {
	const op = "count"
	var result struct {
		Count int `json:"count"`
	}
	req := map[string]any{"exact": true}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/count"), req, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (s *vectorStore) Delete(ctx context.Context, ids []string) error {
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		vectorID := strings.TrimSpace(id)
		if vectorID == "" {
			continue
		}
		pointID := s.pointID(vectorID)
		if _, exists := seen[pointID]; exists {
			continue
		}
		seen[pointID] = struct{}{}
		pointIDs = append(pointIDs, pointID)
	}
	if len(pointIDs) == 0 {
		return nil
	}

	req := map[string]any{"points": pointIDs}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// pointID maps a stable string id to a qdrant-legal UUID. Ids that already
// parse as UUIDs pass through unchanged.
func (s *vectorStore) pointID(vectorID string) string {
	if parsed, err := uuid.Parse(vectorID); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(vectorID)).String()
}

func extractVectorID(payload map[string]any, rawID json.RawMessage) string {
	if payload != nil {
		if v, ok := payload[payloadVectorIDKey].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	var asString string
	if err := json.Unmarshal(rawID, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	return strings.TrimSpace(string(rawID))
}

// translateFilter converts a flat equality-match map into qdrant filter form.
func translateFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, reqBody)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorTransportFailed, "read response failed", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant returned status=%d body=%s", resp.StatusCode, snippet),
		}
	}
	if out == nil {
		return nil
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, msg string, err error) *OperationError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, msg, err)
	}
	return opErr(op, OperationErrorTransportFailed, msg, err)
}
