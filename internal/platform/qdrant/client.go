package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	c := &Client{
		log:     log.With("client", "Qdrant"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := c.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	c.log.Info("Qdrant client ready",
		"url", c.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return c, nil
}

// ensureCollection creates the collection with cosine distance if missing.
func (c *Client) ensureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	err := c.doJSON(ctx, op, http.MethodGet, c.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	var oe *OperationError
	if !asOperationError(err, &oe) || oe.Status != http.StatusNotFound {
		return err
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     c.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath(""), req, nil)
}

func (c *Client) UpsertPoints(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
		}
		if c.cfg.VectorDim > 0 && len(p.Vector) != c.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, c.cfg.VectorDim, len(p.Vector)), nil)
		}
		body = append(body, map[string]any{
			"id":      id,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	req := map[string]any{"points": body}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath("/points?wait=true"), req, nil)
}

func (c *Client) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]ScoredPoint, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if scoreThreshold > -1 {
		req["score_threshold"] = scoreThreshold
	}
	var result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	}
	if err := c.doJSON(ctx, op, http.MethodPost, c.collectionPath("/points/search"), req, &result); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(result))
	for _, r := range result {
		out = append(out, ScoredPoint{
			ID:      decodePointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return out, nil
}

func (c *Client) DeletePoints(ctx context.Context, ids []string) error {
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}
	req := map[string]any{"points": ids}
	return c.doJSON(ctx, op, http.MethodPost, c.collectionPath("/points/delete?wait=true"), req, nil)
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.cfg.Collection + suffix
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return opErr(op, OperationErrorValidation, "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return opErr(op, OperationErrorValidation, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return opErr(op, OperationErrorTransport, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		kind := OperationErrorRemote
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
			kind = OperationErrorUnavailable
		}
		return &OperationError{
			Op:     op,
			Kind:   kind,
			Status: resp.StatusCode,
			Msg:    strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return opErr(op, OperationErrorRemote, "decode response", err)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorRemote, "decode result", err)
	}
	return nil
}

// decodePointID handles qdrant returning ids as either strings or numbers.
func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func asOperationError(err error, target **OperationError) bool {
	oe, ok := err.(*OperationError)
	if ok {
		*target = oe
	}
	return ok
}
