package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aura-events/backend/internal/models"
)

// Client talks to the stats service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a stats client. timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// HitRequest is the wire form of POST /hit.
type HitRequest struct {
	App       string `json:"app" binding:"required"`
	URI       string `json:"uri" binding:"required"`
	IP        string `json:"ip" binding:"required"`
	Timestamp string `json:"timestamp" binding:"required"`
}

// PostHit stores one hit.
func (c *Client) PostHit(ctx context.Context, hit Hit) error {
	body, err := json.Marshal(HitRequest{
		App:       hit.App,
		URI:       hit.URI,
		IP:        hit.IP,
		Timestamp: hit.Timestamp.UTC().Format(models.DateTimeLayout),
	})
	if err != nil {
		return fmt.Errorf("marshal hit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post hit: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post hit status: %d", resp.StatusCode)
	}
	return nil
}

// Stats fetches aggregated hits for uris within window.
func (c *Client) Stats(ctx context.Context, uris []string, unique bool, window Window) ([]models.ViewStats, error) {
	q := url.Values{}
	q.Set("start", window.Start.UTC().Format(models.DateTimeLayout))
	q.Set("end", window.End.UTC().Format(models.DateTimeLayout))
	if len(uris) > 0 {
		q.Set("uris", strings.Join(uris, ","))
	}
	q.Set("unique", strconv.FormatBool(unique))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get stats status: %d", resp.StatusCode)
	}
	var body struct {
		Success bool               `json:"success"`
		Data    []models.ViewStats `json:"data"`
		Error   string             `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("stats service: %s", body.Error)
	}
	return body.Data, nil
}

// GetHits is Stats folded into a per-uri count.
func (c *Client) GetHits(ctx context.Context, uris []string, unique bool, window Window) (map[string]int64, error) {
	list, err := c.Stats(ctx, uris, unique, window)
	if err != nil {
		return nil, err
	}
	hits := make(map[string]int64, len(list))
	for _, s := range list {
		hits[s.URI] += s.Hits
	}
	return hits, nil
}
