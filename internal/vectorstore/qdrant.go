// Package vectorstore is a small client for the Qdrant REST API.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Distance metrics accepted by CreateCollection.
const (
	DistanceCosine = "Cosine"
	DistanceDot    = "Dot"
	DistanceEuclid = "Euclid"
)

// DefaultDimension matches text-embedding-3-small.
const DefaultDimension = 1536

// PointID is a Qdrant point id. Qdrant accepts unsigned integers or UUIDs;
// numeric ids are sent as JSON numbers.
type PointID string

// MarshalJSON implements json.Marshaler.
func (p PointID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseUint(string(p), 10, 64); err == nil {
		return []byte(strconv.FormatUint(n, 10)), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PointID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PointID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid point id %s: %w", string(data), err)
	}
	*p = PointID(n.String())
	return nil
}

// Point is a vector with its payload.
type Point struct {
	ID      PointID        `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SearchResult is a single scored result.
type SearchResult struct {
	ID      PointID        `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Filter is a Qdrant filter clause. Conditions are either field matches or
// nested filters.
type Filter struct {
	Must    []any `json:"must,omitempty"`
	Should  []any `json:"should,omitempty"`
	MustNot []any `json:"must_not,omitempty"`
}

// Match builds a field equality condition.
func Match(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

// SearchRequest describes a similarity search.
type SearchRequest struct {
	Vector         []float32
	Limit          int
	ScoreThreshold float64
	Filter         *Filter
}

// ScrollPage is one page of a scroll.
type ScrollPage struct {
	Points     []Point
	NextOffset *PointID
}

// CollectionInfo is the subset of collection metadata the brain uses.
type CollectionInfo struct {
	Status      string `json:"status"`
	PointsCount int64  `json:"points_count"`
}

// Client interfaces with the Qdrant REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. apiKey may be empty for unauthenticated instances.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies Qdrant connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode collections response: %w", err)
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, col := range resp.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// GetCollection returns collection metadata.
func (c *Client) GetCollection(ctx context.Context, name string) (CollectionInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return CollectionInfo{}, err
	}
	var resp struct {
		Result CollectionInfo `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CollectionInfo{}, fmt.Errorf("decode collection response: %w", err)
	}
	return resp.Result, nil
}

// CreateCollection creates a collection with the given vector size and distance.
func (c *Client) CreateCollection(ctx context.Context, name string, size int, distance string) error {
	if size <= 0 {
		size = DefaultDimension
	}
	if distance == "" {
		distance = DistanceCosine
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": distance,
		},
	}
	_, err := c.do(ctx, http.MethodPut, "/collections/"+name, body)
	return err
}

// EnsureCollection creates a collection if it doesn't exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, size int) error {
	exists, err := c.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.CreateCollection(ctx, name, size, DistanceCosine)
}

// CollectionExists checks if a collection exists.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Upsert inserts or updates points in a collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	body := map[string]any{
		"points": points,
	}
	_, err := c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	return err
}

// Search finds the nearest vectors in a collection.
func (c *Client) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        req.Limit,
		"with_payload": true,
	}
	if req.ScoreThreshold > 0 {
		body["score_threshold"] = req.ScoreThreshold
	}
	if req.Filter != nil {
		body["filter"] = req.Filter
	}

	respBody, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []SearchResult `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return resp.Result, nil
}

// Scroll pages through a collection in storage order.
func (c *Client) Scroll(ctx context.Context, collection string, limit int, offset *PointID, filter *Filter, withVector bool) (ScrollPage, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVector,
	}
	if offset != nil {
		body["offset"] = *offset
	}
	if filter != nil {
		body["filter"] = filter
	}

	respBody, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body)
	if err != nil {
		return ScrollPage{}, err
	}

	var resp struct {
		Result struct {
			Points         []Point  `json:"points"`
			NextPageOffset *PointID `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return ScrollPage{}, fmt.Errorf("decode scroll response: %w", err)
	}
	return ScrollPage{Points: resp.Result.Points, NextOffset: resp.Result.NextPageOffset}, nil
}

// GetPoint fetches a single point with its payload. found is false when the
// point does not exist.
func (c *Client) GetPoint(ctx context.Context, collection string, id PointID) (p Point, found bool, err error) {
	body := map[string]any{
		"ids":          []PointID{id},
		"with_payload": true,
	}
	respBody, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body)
	if err != nil {
		return Point{}, false, err
	}
	var resp struct {
		Result []Point `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Point{}, false, fmt.Errorf("decode points response: %w", err)
	}
	if len(resp.Result) == 0 {
		return Point{}, false, nil
	}
	return resp.Result[0], true, nil
}

// SetPayload merges payload fields into the given points.
func (c *Client) SetPayload(ctx context.Context, collection string, payload map[string]any, ids ...PointID) error {
	body := map[string]any{
		"payload": payload,
		"points":  ids,
	}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/payload?wait=true", body)
	return err
}

// DeletePoints removes points by their IDs from a collection.
func (c *Client) DeletePoints(ctx context.Context, collection string, ids ...PointID) error {
	body := map[string]any{
		"points": ids,
	}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
