package bountylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bountyline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Account represents a contributor account.
type Account struct {
	ID          string `json:"id"`
	CoinBalance int    `json:"coin_balance"`
	XP          int    `json:"xp"`
	Rank        string `json:"rank"`
	XPToNext    int    `json:"xp_to_next_rank"`
	Active      bool   `json:"active"`
}

// Stake represents a locked stake against an issue.
type Stake struct {
	ID             string `json:"id"`
	IssueNumber    int    `json:"issue_number"`
	Repository     string `json:"repository"`
	AccountID      string `json:"account_id"`
	StakeAmount    int    `json:"stake_amount"`
	Status         string `json:"status"`
	LinkedPRNumber *int   `json:"linked_pr_number,omitempty"`
}

// Award represents a one-time XP credit for a PR.
type Award struct {
	ID            string  `json:"id"`
	PRNumber      int     `json:"pr_number"`
	AccountID     string  `json:"account_id"`
	XPAwarded     int     `json:"xp_awarded"`
	OverallRating float64 `json:"overall_rating"`
}

// AwardResult pairs an award with the credited account.
type AwardResult struct {
	Award   Award   `json:"award"`
	Account Account `json:"account"`
}

// Analysis represents one issue analysis result.
type Analysis struct {
	IssueNumber          int            `json:"issue_number"`
	Repository           string         `json:"repository"`
	IssuePriority        string         `json:"issue_priority"`
	PriorityAssignments  map[int]string `json:"priority_assignments"`
	PatternCompliance    string         `json:"pattern_compliance"`
	CompliancePercentage float64        `json:"compliance_percentage"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	Repository string `json:"repository"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// AwardScores carries the review scores for CreateAward.
type AwardScores struct {
	Correctness         int  `json:"correctness"`
	Clarity             int  `json:"clarity"`
	Maintainability     int  `json:"maintainability"`
	Testing             int  `json:"testing"`
	Documentation       int  `json:"documentation"`
	TestsAdded          bool `json:"tests_added"`
	DocsUpdated         bool `json:"docs_updated"`
	ConventionsFollowed bool `json:"conventions_followed"`
	IssueResolved       bool `json:"issue_resolved"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAccount creates a contributor account.
func (c *Client) CreateAccount(ctx context.Context, id string, initialCoins int) (Account, error) {
	body := map[string]any{
		"id":            id,
		"initial_coins": initialCoins,
	}
	var resp Account
	err := c.do(ctx, http.MethodPost, "v0/accounts", body, &resp)
	return resp, err
}

// GetAccount fetches one account.
func (c *Client) GetAccount(ctx context.Context, id string) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodGet, "v0/accounts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// OpenStake locks the issue's stake amount for an account.
func (c *Client) OpenStake(ctx context.Context, issueNumber int, accountID string, prNumber int) (Stake, error) {
	body := map[string]any{
		"issue_number": issueNumber,
		"account_id":   accountID,
	}
	if prNumber > 0 {
		body["pr_number"] = prNumber
	}
	var resp Stake
	err := c.do(ctx, http.MethodPost, "v0/stakes", body, &resp)
	return resp, err
}

// ResolveStake completes or refunds a stake depending on merged.
func (c *Client) ResolveStake(ctx context.Context, stakeID string, merged bool) (Stake, error) {
	body := map[string]any{"merged": merged}
	var resp Stake
	endpoint := fmt.Sprintf("v0/stakes/%s/resolve", url.PathEscape(stakeID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SweepStakes expires every overdue active stake.
func (c *Client) SweepStakes(ctx context.Context) ([]Stake, error) {
	var resp []Stake
	err := c.do(ctx, http.MethodPost, "v0/stakes/sweep", nil, &resp)
	return resp, err
}

// AnalyzeIssue scores the issue's linked PRs and assigns priorities.
func (c *Client) AnalyzeIssue(ctx context.Context, issueNumber int) (Analysis, error) {
	var resp Analysis
	endpoint := fmt.Sprintf("v0/issues/%d/analyze", issueNumber)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateAward credits the computed XP for a reviewed PR.
func (c *Client) CreateAward(ctx context.Context, prNumber int, accountID string, scores AwardScores) (AwardResult, error) {
	body := map[string]any{
		"pr_number":  prNumber,
		"account_id": accountID,
		"dimensions": map[string]int{
			"correctness":     scores.Correctness,
			"clarity":         scores.Clarity,
			"maintainability": scores.Maintainability,
			"testing":         scores.Testing,
			"documentation":   scores.Documentation,
		},
		"bonuses": map[string]bool{
			"tests_added":          scores.TestsAdded,
			"docs_updated":         scores.DocsUpdated,
			"conventions_followed": scores.ConventionsFollowed,
			"issue_resolved":       scores.IssueResolved,
		},
	}
	var resp AwardResult
	err := c.do(ctx, http.MethodPost, "v0/awards", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
