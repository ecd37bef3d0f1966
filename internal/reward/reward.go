// Package reward converts review quality scores into a bounded XP award.
package reward

import "math"

// XP bounds for a single award.
const (
	MinXP = 10
	MaxXP = 150
)

// Bonus weights for the four independent flags.
const (
	testsAddedBonus    = 10
	docsUpdatedBonus   = 5
	conventionsBonus   = 5
	issueResolvedBonus = 10
	maxDimensionPoints = 25
	pointsPerDimension = 5
)

// Dimensions are the five review quality dimensions, each scored 0-5.
type Dimensions struct {
	Correctness     int `json:"correctness" minimum:"0" maximum:"5"`
	Clarity         int `json:"clarity" minimum:"0" maximum:"5"`
	Maintainability int `json:"maintainability" minimum:"0" maximum:"5"`
	Testing         int `json:"testing" minimum:"0" maximum:"5"`
	Documentation   int `json:"documentation" minimum:"0" maximum:"5"`
}

// FromPercent converts 0-100 dimension scores to the 0-5 scale.
func FromPercent(correctness, clarity, maintainability, testing, documentation int) Dimensions {
	return Dimensions{
		Correctness:     scale(correctness),
		Clarity:         scale(clarity),
		Maintainability: scale(maintainability),
		Testing:         scale(testing),
		Documentation:   scale(documentation),
	}
}

func scale(percent int) int {
	return clamp(int(math.Round(float64(percent)/100*pointsPerDimension)), 0, pointsPerDimension)
}

// Bonuses are the four independent award flags.
type Bonuses struct {
	TestsAdded          bool `json:"tests_added"`
	DocsUpdated         bool `json:"docs_updated"`
	ConventionsFollowed bool `json:"conventions_followed"`
	IssueResolved       bool `json:"issue_resolved"`
}

// Result is the deterministic outcome of a reward computation.
type Result struct {
	TotalScore    int     `json:"total_score"`
	OverallRating float64 `json:"overall_rating"`
	BaseXP        int     `json:"base_xp"`
	BonusXP       int     `json:"bonus_xp"`
	RecommendedXP int     `json:"recommended_xp"`
}

// Compute derives the XP award. Pure: the same input always yields the same
// result. RecommendedXP is always within [MinXP, MaxXP]; the caller owns the
// at-most-once-per-PR guarantee.
func Compute(d Dimensions, b Bonuses) Result {
	total := d.Correctness + d.Clarity + d.Maintainability + d.Testing + d.Documentation
	total = clamp(total, 0, maxDimensionPoints)

	rating := math.Round(float64(total)/maxDimensionPoints*10*10) / 10
	base := int(math.Round(float64(total) / maxDimensionPoints * 100))

	bonus := 0
	if b.TestsAdded {
		bonus += testsAddedBonus
	}
	if b.DocsUpdated {
		bonus += docsUpdatedBonus
	}
	if b.ConventionsFollowed {
		bonus += conventionsBonus
	}
	if b.IssueResolved {
		bonus += issueResolvedBonus
	}

	return Result{
		TotalScore:    total,
		OverallRating: rating,
		BaseXP:        base,
		BonusXP:       bonus,
		RecommendedXP: clamp(base+bonus, MinXP, MaxXP),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
