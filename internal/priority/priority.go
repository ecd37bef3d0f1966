// Package priority reduces per-PR scores into issue and PR priority labels.
package priority

import (
	"sort"

	"github.com/montanaflynn/stats"

	"bountyline/internal/domain"
)

// Priority labels, highest first.
const (
	Priority1 = "Priority-1"
	Priority2 = "Priority-2"
	Priority3 = "Priority-3"
	Priority4 = "Priority-4"
)

// Design pattern compliance labels.
const (
	Followed    = "followed"
	NotFollowed = "not_followed"

	FollowedLabel    = "design-pattern-followed"
	NotFollowedLabel = "design-pattern-not-followed"
)

// Issue-level priority thresholds applied to the top PR's overall score.
// Distinct from the positional per-PR buckets; the two rules are separate
// on purpose and must not be unified.
const (
	issueP1Threshold = 80
	issueP2Threshold = 60
	issueP3Threshold = 40
)

// complianceThreshold is the fraction of PRs that must follow the design
// pattern for the issue to count as compliant.
const complianceThreshold = 70.0

// ScoredPR is a PR with its computed overall score, in ranked order.
type ScoredPR struct {
	Score        domain.PRScore `json:"score"`
	OverallScore int            `json:"overall_score"`
	Priority     string         `json:"priority"`
}

// Result is the deterministic output for one issue.
type Result struct {
	IssuePriority        string         `json:"issue_priority"`
	Ranked               []ScoredPR     `json:"ranked"`
	Assignments          map[int]string `json:"assignments"`
	PatternCompliance    string         `json:"pattern_compliance"`
	CompliancePercentage float64        `json:"compliance_percentage"`
}

// Neutral is the fallback score substituted when the scorer fails for a PR.
func Neutral(prNumber int) domain.PRScore {
	return domain.PRScore{
		PRNumber:              prNumber,
		DesignPatternScore:    50,
		CodeQualityScore:      50,
		PriorityScore:         50,
		DesignPatternFollowed: false,
	}
}

// Compute ranks the PRs of one issue and assigns priority labels.
//
// Per-PR buckets are positional: 1st ranked PR gets Priority-1, 2nd
// Priority-2, 3rd Priority-3, everything after Priority-4. Ties on overall
// score are broken by ascending PR number so the earlier PR wins; AI scores
// are not guaranteed distinct and the ordering must be reproducible.
//
// The issue-level priority is derived independently from the top PR's raw
// overall score against the fixed 80/60/40 thresholds.
func Compute(scores []domain.PRScore) Result {
	ranked := make([]ScoredPR, 0, len(scores))
	followed := 0
	for _, s := range scores {
		ranked = append(ranked, ScoredPR{Score: s, OverallScore: overallScore(s)})
		if s.DesignPatternFollowed {
			followed++
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].OverallScore != ranked[j].OverallScore {
			return ranked[i].OverallScore > ranked[j].OverallScore
		}
		return ranked[i].Score.PRNumber < ranked[j].Score.PRNumber
	})

	assignments := make(map[int]string, len(ranked))
	for i := range ranked {
		ranked[i].Priority = bucketFor(i)
		assignments[ranked[i].Score.PRNumber] = ranked[i].Priority
	}

	res := Result{
		IssuePriority:     Priority4,
		Ranked:            ranked,
		Assignments:       assignments,
		PatternCompliance: NotFollowed,
	}
	if len(ranked) > 0 {
		res.IssuePriority = issuePriorityFor(ranked[0].OverallScore)
		pct, _ := stats.Round(float64(followed)/float64(len(ranked))*100, 1)
		res.CompliancePercentage = pct
		if pct >= complianceThreshold {
			res.PatternCompliance = Followed
		}
	}
	return res
}

// ComplianceLabel maps a compliance verdict to its GitHub label.
func ComplianceLabel(compliance string) string {
	if compliance == Followed {
		return FollowedLabel
	}
	return NotFollowedLabel
}

// PRComplianceLabel maps a single PR's flag to its GitHub label.
func PRComplianceLabel(followed bool) string {
	if followed {
		return FollowedLabel
	}
	return NotFollowedLabel
}

func overallScore(s domain.PRScore) int {
	mean, _ := stats.Mean(stats.LoadRawData([]int{
		s.DesignPatternScore, s.CodeQualityScore, s.PriorityScore,
	}))
	rounded, _ := stats.Round(mean, 0)
	return int(rounded)
}

func bucketFor(position int) string {
	switch position {
	case 0:
		return Priority1
	case 1:
		return Priority2
	case 2:
		return Priority3
	default:
		return Priority4
	}
}

func issuePriorityFor(topScore int) string {
	switch {
	case topScore >= issueP1Threshold:
		return Priority1
	case topScore >= issueP2Threshold:
		return Priority2
	case topScore >= issueP3Threshold:
		return Priority3
	default:
		return Priority4
	}
}
