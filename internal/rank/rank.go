// Package rank maps experience points to named tiers.
package rank

// Rank is an ordered tier. Higher values outrank lower ones.
type Rank int

const (
	Newcomer Rank = iota
	Contributor
	Collaborator
	Expert
	Master
	Legend
)

var names = [...]string{
	Newcomer:     "Newcomer",
	Contributor:  "Contributor",
	Collaborator: "Collaborator",
	Expert:       "Expert",
	Master:       "Master",
	Legend:       "Legend",
}

// thresholds are the minimum XP for each rank. Monotonically increasing.
var thresholds = [...]int{0, 100, 500, 1500, 3000, 5000}

func (r Rank) String() string {
	if r < 0 || int(r) >= len(names) {
		return "Newcomer"
	}
	return names[r]
}

// Of returns the rank for the given XP. Negative XP maps to the lowest rank.
func Of(xp int) Rank {
	r := Newcomer
	for i, min := range thresholds {
		if xp >= min {
			r = Rank(i)
		}
	}
	return r
}

// ToNext returns the XP still needed to reach the next rank, or 0 at the top.
func ToNext(xp int) int {
	r := Of(xp)
	if r == Legend {
		return 0
	}
	return thresholds[r+1] - xp
}

// Thresholds returns the rank table as (minimum XP, name) pairs in order.
func Thresholds() []struct {
	MinXP int
	Name  string
} {
	out := make([]struct {
		MinXP int
		Name  string
	}, len(thresholds))
	for i, min := range thresholds {
		out[i].MinXP = min
		out[i].Name = names[i]
	}
	return out
}
