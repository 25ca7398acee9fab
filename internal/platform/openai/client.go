package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/httpx"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// Client is the OpenAI-compatible endpoint client used by the extraction and
// reasoning services. Generation is non-streaming.
type Client interface {
	// Embed returns one fixed-dimension vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// GenerateText runs a single-turn chat completion.
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	timeout := envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 30*time.Second)

	return &client{
		log:        log.With("client", "OpenAI"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		embedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: envutil.Int("OPENAI_MAX_RETRIES", 3),
	}, nil
}

// NewClientForTest wires an arbitrary http.Client against a base URL. Tests
// use it with a stub transport.
func NewClientForTest(log *logger.Logger, baseURL string, hc *http.Client) Client {
	return &client{
		log:        log.With("client", "OpenAI"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     "test",
		model:      "test-model",
		embedModel: "test-embed",
		httpClient: hc,
		maxRetries: 0,
	}
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.embedModel, Input: clean}
	var resp embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embeddings response missing index %d (requested=%d returned=%d)", i, len(clean), len(resp.Data))
		}
	}
	return out, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	req := chatRequest{Model: c.model, Messages: messages}
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("openai request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
