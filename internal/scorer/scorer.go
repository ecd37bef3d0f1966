// Package scorer provides Scorer implementations: an HTTP client for an
// external scoring service and a deterministic offline scorer.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"bountyline/internal/domain"
	"bountyline/internal/engine"
)

// Client scores pull requests through a remote HTTP endpoint. The endpoint
// receives the engine.ScoreRequest as JSON and answers with a PR score.
type Client struct {
	// Endpoint is the full URL of the scoring service.
	Endpoint string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type scoreResponse struct {
	DesignPatternScore    float64 `json:"design_pattern_score"`
	CodeQualityScore      float64 `json:"code_quality_score"`
	PriorityScore         float64 `json:"priority_score"`
	DesignPatternFollowed bool    `json:"design_pattern_followed"`
}

// Score posts the request and decodes the returned score. Any transport or
// protocol failure is wrapped in engine.ErrScoringUnavailable; the engine
// degrades that PR to the neutral score.
func (c *Client) Score(ctx context.Context, req engine.ScoreRequest) (domain.PRScore, error) {
	if c.Endpoint == "" {
		return domain.PRScore{}, fmt.Errorf("%w: no scoring endpoint configured", engine.ErrScoringUnavailable)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.PRScore{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PRScore{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return domain.PRScore{}, fmt.Errorf("%w: %v", engine.ErrScoringUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.PRScore{}, fmt.Errorf("%w: scoring service returned %d: %s", engine.ErrScoringUnavailable, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return domain.PRScore{}, fmt.Errorf("%w: decode score: %v", engine.ErrScoringUnavailable, err)
	}
	return domain.PRScore{
		PRNumber:              req.PRNumber,
		DesignPatternScore:    clamp(sr.DesignPatternScore),
		CodeQualityScore:      clamp(sr.CodeQualityScore),
		PriorityScore:         clamp(sr.PriorityScore),
		DesignPatternFollowed: sr.DesignPatternFollowed,
	}, nil
}

// clamp rounds a wire score to the 0-100 integer scale.
func clamp(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// Static scores PRs deterministically from the diff contents, without any
// external service. Useful offline and in tests: the same diff always yields
// the same score.
type Static struct{}

func (Static) Score(_ context.Context, req engine.ScoreRequest) (domain.PRScore, error) {
	h := fnv.New32a()
	h.Write([]byte(req.Title))
	h.Write([]byte(req.Diff))
	sum := h.Sum32()

	// Spread the hash over three mid-range scores so batches still produce
	// distinct priority buckets.
	design := 40 + int(sum%45)
	quality := 40 + int((sum>>8)%45)
	prio := 40 + int((sum>>16)%45)
	return domain.PRScore{
		PRNumber:              req.PRNumber,
		DesignPatternScore:    design,
		CodeQualityScore:      quality,
		PriorityScore:         prio,
		DesignPatternFollowed: design >= 60,
	}, nil
}
