package priority_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountyline/internal/domain"
	"bountyline/internal/priority"
)

func score(pr, dp, cq, ps int, followed bool) domain.PRScore {
	return domain.PRScore{
		PRNumber:              pr,
		DesignPatternScore:    dp,
		CodeQualityScore:      cq,
		PriorityScore:         ps,
		DesignPatternFollowed: followed,
	}
}

func TestComputeBucketOrder(t *testing.T) {
	res := priority.Compute([]domain.PRScore{
		score(7, 40, 40, 40, false),
		score(3, 90, 90, 90, true),
		score(5, 70, 70, 70, true),
	})

	require.Len(t, res.Ranked, 3)
	assert.Equal(t, 3, res.Ranked[0].Score.PRNumber)
	assert.Equal(t, 5, res.Ranked[1].Score.PRNumber)
	assert.Equal(t, 7, res.Ranked[2].Score.PRNumber)
	assert.Equal(t, priority.Priority1, res.Assignments[3])
	assert.Equal(t, priority.Priority2, res.Assignments[5])
	assert.Equal(t, priority.Priority3, res.Assignments[7])
	// top score 90 >= 80
	assert.Equal(t, priority.Priority1, res.IssuePriority)
}

func TestComputeTieBreakByPRNumber(t *testing.T) {
	res := priority.Compute([]domain.PRScore{
		score(15, 75, 75, 75, true),
		score(12, 75, 75, 75, true),
	})

	require.Len(t, res.Ranked, 2)
	assert.Equal(t, 12, res.Ranked[0].Score.PRNumber, "lower PR number wins the tie")
	assert.Equal(t, priority.Priority1, res.Assignments[12])
	assert.Equal(t, priority.Priority2, res.Assignments[15])
}

func TestBucketsArePositionalNotThresholdBased(t *testing.T) {
	// Two low-scoring PRs: still Priority-1 and Priority-2 positionally,
	// never Priority-3, while the issue priority reflects the raw score.
	res := priority.Compute([]domain.PRScore{
		score(1, 20, 20, 20, false),
		score(2, 10, 10, 10, false),
	})

	assert.Equal(t, priority.Priority1, res.Assignments[1])
	assert.Equal(t, priority.Priority2, res.Assignments[2])
	assert.Equal(t, priority.Priority4, res.IssuePriority)
}

func TestRemainderGetsPriority4(t *testing.T) {
	res := priority.Compute([]domain.PRScore{
		score(1, 90, 90, 90, true),
		score(2, 80, 80, 80, true),
		score(3, 70, 70, 70, true),
		score(4, 60, 60, 60, true),
		score(5, 50, 50, 50, true),
	})
	assert.Equal(t, priority.Priority4, res.Assignments[4])
	assert.Equal(t, priority.Priority4, res.Assignments[5])
}

func TestIssuePriorityThresholds(t *testing.T) {
	cases := []struct {
		top  int
		want string
	}{
		{95, priority.Priority1},
		{80, priority.Priority1},
		{79, priority.Priority2},
		{60, priority.Priority2},
		{59, priority.Priority3},
		{40, priority.Priority3},
		{39, priority.Priority4},
		{0, priority.Priority4},
	}
	for _, c := range cases {
		res := priority.Compute([]domain.PRScore{score(1, c.top, c.top, c.top, false)})
		assert.Equal(t, c.want, res.IssuePriority, "top=%d", c.top)
	}
}

func TestCompliance(t *testing.T) {
	// 3 of 4 followed: 75% >= 70%.
	res := priority.Compute([]domain.PRScore{
		score(1, 50, 50, 50, true),
		score(2, 50, 50, 50, true),
		score(3, 50, 50, 50, true),
		score(4, 50, 50, 50, false),
	})
	assert.Equal(t, priority.Followed, res.PatternCompliance)
	assert.Equal(t, 75.0, res.CompliancePercentage)

	// 2 of 4: 50% < 70%.
	res = priority.Compute([]domain.PRScore{
		score(1, 50, 50, 50, true),
		score(2, 50, 50, 50, true),
		score(3, 50, 50, 50, false),
		score(4, 50, 50, 50, false),
	})
	assert.Equal(t, priority.NotFollowed, res.PatternCompliance)
}

func TestComputeDeterministic(t *testing.T) {
	input := []domain.PRScore{
		score(9, 61, 72, 55, true),
		score(4, 61, 72, 55, false),
		score(2, 88, 91, 79, true),
	}
	first := priority.Compute(input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, priority.Compute(input))
	}
}

func TestComputeEmpty(t *testing.T) {
	res := priority.Compute(nil)
	assert.Empty(t, res.Ranked)
	assert.Equal(t, priority.Priority4, res.IssuePriority)
	assert.Equal(t, priority.NotFollowed, res.PatternCompliance)
}

func TestNeutral(t *testing.T) {
	n := priority.Neutral(42)
	assert.Equal(t, 42, n.PRNumber)
	assert.Equal(t, 50, n.DesignPatternScore)
	assert.Equal(t, 50, n.CodeQualityScore)
	assert.Equal(t, 50, n.PriorityScore)
	assert.False(t, n.DesignPatternFollowed)
}
