package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
	"github.com/scigraph/scigraph-backend/internal/platform/openai"
	"github.com/scigraph/scigraph-backend/internal/platform/resilience"
)

// EmbeddingService batches texts against the embedding endpoint behind a
// content-addressed cache. Order of results always matches input order.
type EmbeddingService struct {
	llm       openai.Client
	guard     *resilience.Guard
	cache     EmbedCache
	model     string
	batchSize int
	log       *logger.Logger
}

func NewEmbeddingService(llm openai.Client, guard *resilience.Guard, cache EmbedCache, baseLog *logger.Logger) (*EmbeddingService, error) {
	if llm == nil {
		return nil, fmt.Errorf("embedding: llm client required")
	}
	return &EmbeddingService{
		llm:       llm,
		guard:     guard,
		cache:     cache,
		model:     envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		batchSize: envutil.Int("EMBED_BATCH_SIZE", 100),
		log:       baseLog.With("service", "EmbeddingService"),
	}, nil
}

// Embed returns one vector for one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany resolves cached vectors first and issues the misses in chunks of
// the batch size. Empty input returns empty output without a call.
func (s *EmbeddingService) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, s.cacheKey(text)); ok {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		chunk := missTexts[start:end]

		var vecs [][]float32
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			var callErr error
			vecs, callErr = s.llm.Embed(ctx, chunk)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(chunk) {
			return nil, fmt.Errorf("embedding: batch %d-%d: want=%d vectors got=%d", start, end, len(chunk), len(vecs))
		}
		for i, vec := range vecs {
			idx := missIdx[start+i]
			out[idx] = vec
			if s.cache != nil {
				s.cache.Put(ctx, s.cacheKey(texts[idx]), vec)
			}
		}
	}
	return out, nil
}

// ClearCache drops every cached vector.
func (s *EmbeddingService) ClearCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Clear(ctx)
	}
}

func (s *EmbeddingService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// NormalizeVector unit-normalizes in place-safe copy; the zero vector comes
// back unchanged.
func NormalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// CosineSimilarity rejects length-mismatched pairs.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: length mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
