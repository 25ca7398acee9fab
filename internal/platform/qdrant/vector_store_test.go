package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestVectorStore(t *testing.T, rt roundTripFunc) *vectorStore {
	t.Helper()
	return &vectorStore{
		log:     logger.NewNop(),
		cfg:     Config{URL: "http://qdrant.test", Collection: "scigraph", VectorDim: 3},
		baseURL: "http://qdrant.test",
		http:    &http.Client{Transport: rt},
	}
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok"})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Header:     http.Header{},
	}
}

func TestUpsertHashesNonUUIDIDs(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=PUT got=%s", r.Method)
		}
		if r.URL.Path != "/collections/scigraph/points" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []Vector{
		{ID: "entity:GPT-4", Values: []float32{1, 2, 3}, Payload: map[string]any{"type": "AIModel"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points := captured["points"].([]any)
	first := points[0].(map[string]any)
	pid, _ := first["id"].(string)
	if _, err := uuid.Parse(pid); err != nil {
		t.Fatalf("point id must be a UUID, got %q", pid)
	}
	if pid != s.pointID("entity:GPT-4") {
		t.Fatalf("point id not content-addressed: got=%q", pid)
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadVectorIDKey] != "entity:GPT-4" {
		t.Fatalf("original id must be stored in payload, got %v", payload[payloadVectorIDKey])
	}
}

func TestUpsertPassesThroughUUIDs(t *testing.T) {
	s := newTestVectorStore(t, nil)
	id := uuid.New().String()
	if got := s.pointID(id); got != id {
		t.Fatalf("uuid id must pass through: want=%q got=%q", id, got)
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("request must not be issued on validation failure")
		return nil, nil
	})

	err := s.Upsert(context.Background(), []Vector{{ID: "x", Values: []float32{1, 2}}})
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestSearchOrdersByScoreAndResolvesIDs(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/scigraph/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		return okResponse(t, []map[string]any{
			{"id": "11111111-1111-1111-1111-111111111111", "score": 0.5, "payload": map[string]any{payloadVectorIDKey: "entity:low"}},
			{"id": "22222222-2222-2222-2222-222222222222", "score": 0.9, "payload": map[string]any{payloadVectorIDKey: "entity:high"}},
		}), nil
	})

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 5, nil, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("match count: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "entity:high" || matches[1].ID != "entity:low" {
		t.Fatalf("matches not ordered by descending score: %+v", matches)
	}
}

func TestSearchTranslatesFilter(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{}), nil
	})

	if _, err := s.Search(context.Background(), []float32{1, 0, 0}, 5, map[string]any{"type": "AIModel"}, 0.4); err != nil {
		t.Fatalf("Search: %v", err)
	}
	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter missing from request: %v", captured)
	}
	must := filter["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != "type" {
		t.Fatalf("filter key: got=%v", cond["key"])
	}
	if captured["score_threshold"].(float64) != 0.4 {
		t.Fatalf("score_threshold: got=%v", captured["score_threshold"])
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var createdWith map[string]any
	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if r.Method == http.MethodGet {
			return &http.Response{
				StatusCode: 404,
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"not found"}}`))),
				Header:     http.Header{},
			}, nil
		}
		if err := json.NewDecoder(r.Body).Decode(&createdWith); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, true), nil
	})

	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
	vectors := createdWith["vectors"].(map[string]any)
	if vectors["distance"] != "Cosine" {
		t.Fatalf("distance: want=Cosine got=%v", vectors["distance"])
	}
	if vectors["size"].(float64) != 3 {
		t.Fatalf("size: want=3 got=%v", vectors["size"])
	}
}

func TestDeleteDeduplicatesIDs(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, true), nil
	})

	if err := s.Delete(context.Background(), []string{"a", "a", "b", " "}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	points := captured["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("deduplicated point count: want=2 got=%d", len(points))
	}
}
