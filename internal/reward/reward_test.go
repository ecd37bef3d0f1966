package reward_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bountyline/internal/reward"
)

func TestComputePerfectScore(t *testing.T) {
	res := reward.Compute(reward.Dimensions{
		Correctness: 5, Clarity: 5, Maintainability: 5, Testing: 5, Documentation: 5,
	}, reward.Bonuses{TestsAdded: true, DocsUpdated: true, ConventionsFollowed: true, IssueResolved: true})

	assert.Equal(t, 25, res.TotalScore)
	assert.Equal(t, 10.0, res.OverallRating)
	assert.Equal(t, 100, res.BaseXP)
	assert.Equal(t, 30, res.BonusXP)
	// 130 is within bounds, no clamping.
	assert.Equal(t, 130, res.RecommendedXP)
}

func TestComputeFloor(t *testing.T) {
	res := reward.Compute(reward.Dimensions{}, reward.Bonuses{})
	assert.Equal(t, 0, res.TotalScore)
	assert.Equal(t, 0.0, res.OverallRating)
	assert.Equal(t, 0, res.BaseXP)
	assert.Equal(t, reward.MinXP, res.RecommendedXP)
}

func TestComputeMidRange(t *testing.T) {
	res := reward.Compute(reward.Dimensions{
		Correctness: 4, Clarity: 3, Maintainability: 3, Testing: 2, Documentation: 1,
	}, reward.Bonuses{TestsAdded: true})

	assert.Equal(t, 13, res.TotalScore)
	assert.Equal(t, 5.2, res.OverallRating)
	assert.Equal(t, 52, res.BaseXP)
	assert.Equal(t, 10, res.BonusXP)
	assert.Equal(t, 62, res.RecommendedXP)
}

func TestComputeBounded(t *testing.T) {
	all := []reward.Bonuses{
		{},
		{TestsAdded: true},
		{DocsUpdated: true, ConventionsFollowed: true},
		{TestsAdded: true, DocsUpdated: true, ConventionsFollowed: true, IssueResolved: true},
	}
	for score := 0; score <= 5; score++ {
		for _, b := range all {
			d := reward.Dimensions{
				Correctness: score, Clarity: score, Maintainability: score,
				Testing: score, Documentation: score,
			}
			res := reward.Compute(d, b)
			assert.GreaterOrEqual(t, res.RecommendedXP, reward.MinXP)
			assert.LessOrEqual(t, res.RecommendedXP, reward.MaxXP)
		}
	}
}

func TestFromPercent(t *testing.T) {
	d := reward.FromPercent(100, 80, 50, 0, 90)
	assert.Equal(t, reward.Dimensions{
		Correctness:     5,
		Clarity:         4,
		Maintainability: 3,
		Testing:         0,
		Documentation:   5,
	}, d)
}

func TestComputeDeterministic(t *testing.T) {
	d := reward.Dimensions{Correctness: 3, Clarity: 4, Maintainability: 2, Testing: 5, Documentation: 1}
	b := reward.Bonuses{DocsUpdated: true, IssueResolved: true}
	first := reward.Compute(d, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, reward.Compute(d, b))
	}
}
