package scorer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountyline/internal/engine"
	"bountyline/internal/scorer"
)

func TestClientScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req engine.ScoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 42, req.PRNumber)
		assert.Equal(t, "octo/widgets", req.Repository)
		json.NewEncoder(w).Encode(map[string]any{
			"design_pattern_score":    85.4,
			"code_quality_score":      90.0,
			"priority_score":          69.5,
			"design_pattern_followed": true,
		})
	}))
	defer srv.Close()

	c := scorer.NewClient(srv.URL)
	got, err := c.Score(context.Background(), engine.ScoreRequest{
		PRNumber: 42, Title: "fix parser", Diff: "diff --git", Repository: "octo/widgets",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got.PRNumber)
	assert.Equal(t, 85, got.DesignPatternScore)
	assert.Equal(t, 90, got.CodeQualityScore)
	assert.Equal(t, 70, got.PriorityScore)
	assert.True(t, got.DesignPatternFollowed)
}

func TestClientScoreClampsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"design_pattern_score": 140.0,
			"code_quality_score":   -10.0,
			"priority_score":       50.0,
		})
	}))
	defer srv.Close()

	got, err := scorer.NewClient(srv.URL).Score(context.Background(), engine.ScoreRequest{PRNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, 100, got.DesignPatternScore)
	assert.Equal(t, 0, got.CodeQualityScore)
}

func TestClientScoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := scorer.NewClient(srv.URL).Score(context.Background(), engine.ScoreRequest{PRNumber: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrScoringUnavailable))
}

func TestClientScoreNoEndpoint(t *testing.T) {
	_, err := scorer.NewClient("").Score(context.Background(), engine.ScoreRequest{PRNumber: 1})
	assert.True(t, errors.Is(err, engine.ErrScoringUnavailable))
}

func TestStaticDeterministic(t *testing.T) {
	req := engine.ScoreRequest{PRNumber: 7, Title: "add cache", Diff: "diff --git a/cache.go"}
	a, err := scorer.Static{}.Score(context.Background(), req)
	require.NoError(t, err)
	b, err := scorer.Static{}.Score(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a.DesignPatternScore, 40)
	assert.LessOrEqual(t, a.DesignPatternScore, 100)
}
