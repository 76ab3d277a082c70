package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
	"github.com/guptaanant682/memorybank-backend/internal/platform/httpx"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// Client is the OpenAI-compatible API client used by the embedding,
// extraction and answer-generation boundaries.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// Structured outputs (json_schema).
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema).
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client

	maxRetries   int
	retryBase    time.Duration
	retryMax     time.Duration
	maxInputRune int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	c := &client{
		log:          log.With("client", "OpenAI"),
		baseURL:      strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		apiKey:       apiKey,
		model:        envutil.Str("OPENAI_MODEL", "gpt-4o-mini"),
		embedModel:   envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		httpClient:   &http.Client{Timeout: envutil.Duration("OPENAI_HTTP_TIMEOUT", 60*time.Second)},
		maxRetries:   envutil.Int("OPENAI_MAX_RETRIES", 3),
		retryBase:    envutil.Duration("OPENAI_RETRY_BASE", 500*time.Millisecond),
		retryMax:     envutil.Duration("OPENAI_RETRY_MAX", 8*time.Second),
		maxInputRune: envutil.Int("OPENAI_EMBED_MAX_RUNES", 24000),
	}
	return c, nil
}

// -------------------- Embeddings --------------------

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
		if len([]rune(s)) > c.maxInputRune {
			return nil, &faults.UpstreamError{
				Service:   "embedding",
				Transient: false,
				Err:       fmt.Errorf("%w: input %d exceeds %d runes", faults.ErrEmbeddingRejected, i, c.maxInputRune),
			}
		}
		clean[i] = s
	}

	req := embeddingsRequest{Model: c.embedModel, Input: clean}
	var resp embeddingsResponse
	if err := c.do(ctx, "embedding", "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, &faults.UpstreamError{
				Service:   "embedding",
				Transient: true,
				Err:       fmt.Errorf("%w: response missing index %d", faults.ErrEmbeddingUnavailable, i),
			}
		}
	}
	return out, nil
}

// -------------------- Chat completions --------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var resp chatResponse
	if err := c.do(ctx, "generation", "POST", "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &faults.UpstreamError{
			Service:   "generation",
			Transient: true,
			Err:       fmt.Errorf("%w: empty choices", faults.ErrGenerationUnavailable),
		}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	var resp chatResponse
	if err := c.do(ctx, "extraction", "POST", "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &faults.UpstreamError{
			Service:   "extraction",
			Transient: true,
			Err:       fmt.Errorf("%w: empty choices", faults.ErrExtractionUnavailable),
		}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, &faults.UpstreamError{
			Service:   "extraction",
			Transient: false,
			Err:       fmt.Errorf("decode structured output: %w", err),
		}
	}
	return out, nil
}

// -------------------- Transport --------------------

func (c *client) do(ctx context.Context, service, method, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", service, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := httpx.SleepCtx(ctx, httpx.Backoff(attempt-1, c.retryBase, c.retryMax)); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("build %s request: %w", service, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &faults.UpstreamError{Service: service, Transient: true, Err: err}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			decodeErr := json.NewDecoder(resp.Body).Decode(out)
			_ = resp.Body.Close()
			if decodeErr != nil {
				return &faults.UpstreamError{Service: service, Transient: true, Err: fmt.Errorf("decode response: %w", decodeErr)}
			}
			return nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		upstreamErr := &faults.UpstreamError{
			Service:   service,
			Status:    resp.StatusCode,
			Transient: httpx.IsRetryableHTTPStatus(resp.StatusCode),
			Err:       fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
		if !upstreamErr.Transient {
			return upstreamErr
		}
		lastErr = upstreamErr
	}
	c.log.Warn("upstream retries exhausted", "service", service, "attempts", c.maxRetries+1, "error", lastErr)
	return lastErr
}
