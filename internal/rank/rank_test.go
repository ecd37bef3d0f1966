package rank_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bountyline/internal/rank"
)

func TestOf(t *testing.T) {
	cases := []struct {
		xp   int
		want rank.Rank
	}{
		{-10, rank.Newcomer},
		{0, rank.Newcomer},
		{99, rank.Newcomer},
		{100, rank.Contributor},
		{499, rank.Contributor},
		{500, rank.Collaborator},
		{1500, rank.Expert},
		{2999, rank.Expert},
		{3000, rank.Master},
		{5000, rank.Legend},
		{999999, rank.Legend},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, rank.Of(c.xp), "xp=%d", c.xp)
	}
}

func TestToNext(t *testing.T) {
	assert.Equal(t, 100, rank.ToNext(0))
	assert.Equal(t, 1, rank.ToNext(99))
	assert.Equal(t, 400, rank.ToNext(100))
	assert.Equal(t, 2000, rank.ToNext(3000))
	assert.Equal(t, 0, rank.ToNext(5000))
	assert.Equal(t, 0, rank.ToNext(80000))
}

func TestMonotonic(t *testing.T) {
	prev := rank.Of(0)
	for xp := 1; xp <= 6000; xp++ {
		cur := rank.Of(xp)
		assert.GreaterOrEqual(t, cur, prev, "xp=%d", xp)
		prev = cur
	}
}
