package domain

// Account holds a contributor's coin balance and experience points.
// Rank is recomputed from XP on every XP write; the stored value exists for
// listing convenience and is never trusted as an independent source of truth.
type Account struct {
	ID          string `json:"id"`
	CoinBalance int    `json:"coin_balance"`
	XP          int    `json:"xp"`
	Rank        string `json:"rank"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// StakedIssue is a stake locked against a bounty-labeled issue.
// Exactly one active stake may exist per (issue, account) pair.
type StakedIssue struct {
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

// Stake statuses. Active is the only non-terminal status.
const (
	StakeActive    = "active"
	StakeCompleted = "completed"
	StakeRefunded  = "refunded"
	StakeExpired   = "expired"
)

// BonusAward records a one-time XP credit for a pull request.
// At most one award exists per PR number.
type BonusAward struct {
	ID            string  `json:"id"`
	PRNumber      int     `json:"pr_number"`
	AccountID     string  `json:"account_id"`
	XPAwarded     int     `json:"xp_awarded"`
	OverallRating float64 `json:"overall_rating"`
	AwardedBy     string  `json:"awarded_by"`
	AwardedAt     string  `json:"awarded_at" format:"date-time"`
}

// PRRef identifies a pull request linked to an issue.
type PRRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author"`
	State  string `json:"state,omitempty"`
}

// PRScore is the raw per-PR output of the external scorer, each score on a
// 0-100 scale. Ephemeral: consumed by the priority assigner and persisted
// only as part of an analysis result.
type PRScore struct {
	PRNumber              int  `json:"pr_number"`
	DesignPatternScore    int  `json:"design_pattern_score" minimum:"0" maximum:"100"`
	CodeQualityScore      int  `json:"code_quality_score" minimum:"0" maximum:"100"`
	PriorityScore         int  `json:"priority_score" minimum:"0" maximum:"100"`
	DesignPatternFollowed bool `json:"design_pattern_followed"`
}

// IssueAnalysisResult is the derived outcome of analyzing one issue.
// Recomputed on every analysis call; identical inputs yield identical output.
type IssueAnalysisResult struct {
	IssueNumber          int            `json:"issue_number"`
	Repository           string         `json:"repository"`
	PerPRScores          []PRScore      `json:"per_pr_scores"`
	IssuePriority        string         `json:"issue_priority"`
	PriorityAssignments  map[int]string `json:"priority_assignments"`
	PatternCompliance    string         `json:"pattern_compliance" enum:"followed,not_followed"`
	CompliancePercentage float64        `json:"compliance_percentage"`
	CreatedAt            string         `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Repository string `json:"repository,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
