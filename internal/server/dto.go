package server

import (
	"bountyline/internal/domain"
	"bountyline/internal/rank"
	"bountyline/internal/reward"
)

// Request payloads

type CreateAccountRequest struct {
	ID           string `json:"id"`
	InitialCoins *int   `json:"initial_coins,omitempty" minimum:"0"`
}

type OpenStakeRequest struct {
	IssueNumber int    `json:"issue_number" minimum:"1"`
	PRNumber    *int   `json:"pr_number,omitempty" minimum:"1"`
	AccountID   string `json:"account_id"`
}

type ResolveStakeRequest struct {
	Merged bool `json:"merged"`
}

type AwardDimensionsRequest struct {
	Correctness     int `json:"correctness" minimum:"0" maximum:"5"`
	Clarity         int `json:"clarity" minimum:"0" maximum:"5"`
	Maintainability int `json:"maintainability" minimum:"0" maximum:"5"`
	Testing         int `json:"testing" minimum:"0" maximum:"5"`
	Documentation   int `json:"documentation" minimum:"0" maximum:"5"`
}

type AwardBonusesRequest struct {
	TestsAdded          bool `json:"tests_added"`
	DocsUpdated         bool `json:"docs_updated"`
	ConventionsFollowed bool `json:"conventions_followed"`
	IssueResolved       bool `json:"issue_resolved"`
}

type CreateAwardRequest struct {
	PRNumber   int                    `json:"pr_number" minimum:"1"`
	AccountID  string                 `json:"account_id"`
	Dimensions AwardDimensionsRequest `json:"dimensions"`
	Bonuses    AwardBonusesRequest    `json:"bonuses"`
}

// Response payloads

type AccountResponse struct {
	ID          string `json:"id"`
	CoinBalance int    `json:"coin_balance"`
	XP          int    `json:"xp"`
	Rank        string `json:"rank"`
	XPToNext    int    `json:"xp_to_next_rank"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type StakeResponse struct {
	ID             string  `json:"id"`
	IssueNumber    int     `json:"issue_number"`
	Repository     string  `json:"repository"`
	AccountID      string  `json:"account_id"`
	StakeAmount    int     `json:"stake_amount"`
	Status         string  `json:"status" enum:"active,completed,refunded,expired"`
	LinkedPRNumber *int    `json:"linked_pr_number,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
}

type AwardResponse struct {
	ID            string  `json:"id"`
	PRNumber      int     `json:"pr_number"`
	AccountID     string  `json:"account_id"`
	XPAwarded     int     `json:"xp_awarded"`
	OverallRating float64 `json:"overall_rating"`
	AwardedBy     string  `json:"awarded_by"`
	AwardedAt     string  `json:"awarded_at" format:"date-time"`
}

type AwardResultResponse struct {
	Award   AwardResponse   `json:"award"`
	Account AccountResponse `json:"account"`
}

type AnalysisResponse struct {
	IssueNumber          int              `json:"issue_number"`
	Repository           string           `json:"repository"`
	PerPRScores          []domain.PRScore `json:"per_pr_scores"`
	IssuePriority        string           `json:"issue_priority"`
	PriorityAssignments  map[int]string   `json:"priority_assignments"`
	PatternCompliance    string           `json:"pattern_compliance" enum:"followed,not_followed"`
	CompliancePercentage float64          `json:"compliance_percentage"`
	CreatedAt            string           `json:"created_at" format:"date-time"`
}

type RankThresholdResponse struct {
	Rank  string `json:"rank"`
	MinXP int    `json:"min_xp"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Repository string `json:"repository,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Mapping helpers

func accountResponse(a domain.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		CoinBalance: a.CoinBalance,
		XP:          a.XP,
		Rank:        a.Rank,
		XPToNext:    rank.ToNext(a.XP),
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func mapAccounts(items []domain.Account) []AccountResponse {
	res := make([]AccountResponse, 0, len(items))
	for _, a := range items {
		res = append(res, accountResponse(a))
	}
	return res
}

func stakeResponse(s domain.StakedIssue) StakeResponse {
	return StakeResponse{
		ID:             s.ID,
		IssueNumber:    s.IssueNumber,
		Repository:     s.Repository,
		AccountID:      s.AccountID,
		StakeAmount:    s.StakeAmount,
		Status:         s.Status,
		LinkedPRNumber: s.LinkedPRNumber,
		CreatedAt:      s.CreatedAt,
		ResolvedAt:     s.ResolvedAt,
	}
}

func mapStakes(items []domain.StakedIssue) []StakeResponse {
	res := make([]StakeResponse, 0, len(items))
	for _, s := range items {
		res = append(res, stakeResponse(s))
	}
	return res
}

func awardResponse(a domain.BonusAward) AwardResponse {
	return AwardResponse{
		ID:            a.ID,
		PRNumber:      a.PRNumber,
		AccountID:     a.AccountID,
		XPAwarded:     a.XPAwarded,
		OverallRating: a.OverallRating,
		AwardedBy:     a.AwardedBy,
		AwardedAt:     a.AwardedAt,
	}
}

func mapAwards(items []domain.BonusAward) []AwardResponse {
	res := make([]AwardResponse, 0, len(items))
	for _, a := range items {
		res = append(res, awardResponse(a))
	}
	return res
}

func analysisResponse(r domain.IssueAnalysisResult) AnalysisResponse {
	return AnalysisResponse{
		IssueNumber:          r.IssueNumber,
		Repository:           r.Repository,
		PerPRScores:          r.PerPRScores,
		IssuePriority:        r.IssuePriority,
		PriorityAssignments:  r.PriorityAssignments,
		PatternCompliance:    r.PatternCompliance,
		CompliancePercentage: r.CompliancePercentage,
		CreatedAt:            r.CreatedAt,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			Repository: e.Repository,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}

func rewardDimensions(d AwardDimensionsRequest) reward.Dimensions {
	return reward.Dimensions{
		Correctness:     d.Correctness,
		Clarity:         d.Clarity,
		Maintainability: d.Maintainability,
		Testing:         d.Testing,
		Documentation:   d.Documentation,
	}
}

func rewardBonuses(b AwardBonusesRequest) reward.Bonuses {
	return reward.Bonuses{
		TestsAdded:          b.TestsAdded,
		DocsUpdated:         b.DocsUpdated,
		ConventionsFollowed: b.ConventionsFollowed,
		IssueResolved:       b.IssueResolved,
	}
}
