package match

import (
	"fmt"
	"math"

	"github.com/jonwraymond/fixturefeed/fault"
)

// TeamSummary is one side of a Comparison.
type TeamSummary struct {
	Team           string  `json:"team"`
	Played         int     `json:"played"`
	Wins           int     `json:"wins"`
	Draws          int     `json:"draws"`
	Losses         int     `json:"losses"`
	Points         int     `json:"points"`
	PointsPerGame  float64 `json:"points_per_game"`
	GoalDifference int     `json:"goal_difference"`
	Form           string  `json:"form"`
}

// Comparison contrasts the recent form of two teams.
type Comparison struct {
	A TeamSummary `json:"a"`
	B TeamSummary `json:"b"`
	// Favourite is the team with the better points per game, then goal
	// difference. Empty when the two are level.
	Favourite string `json:"favourite,omitempty"`
	// Margin is the points-per-game gap, rounded to two decimals.
	Margin float64 `json:"margin"`
	// HeadToHead lists results in a's history against b.
	HeadToHead []TeamResult `json:"head_to_head,omitempty"`
}

// Compare contrasts two team histories. It performs no I/O.
//
// Both forms must pass Validate and must name different teams.
func Compare(a, b TeamForm) (Comparison, error) {
	if err := a.Validate(); err != nil {
		return Comparison{}, err
	}
	if err := b.Validate(); err != nil {
		return Comparison{}, err
	}
	if SameTeam(a.Team, b.Team) {
		return Comparison{}, fault.New(fault.KindValidation, fmt.Sprintf("cannot compare %q with itself", a.Team))
	}

	c := Comparison{A: summarize(a), B: summarize(b)}

	gap := c.A.PointsPerGame - c.B.PointsPerGame
	c.Margin = math.Round(math.Abs(gap)*100) / 100
	switch {
	case gap > 0:
		c.Favourite = a.Team
	case gap < 0:
		c.Favourite = b.Team
	case c.A.GoalDifference > c.B.GoalDifference:
		c.Favourite = a.Team
	case c.A.GoalDifference < c.B.GoalDifference:
		c.Favourite = b.Team
	}

	for _, r := range a.Results {
		if SameTeam(r.Opponent, b.Team) {
			c.HeadToHead = append(c.HeadToHead, r)
		}
	}
	return c, nil
}

func summarize(f TeamForm) TeamSummary {
	w, d, l := f.Record()
	return TeamSummary{
		Team:           f.Team,
		Played:         len(f.Results),
		Wins:           w,
		Draws:          d,
		Losses:         l,
		Points:         f.Points(),
		PointsPerGame:  math.Round(f.PointsPerGame()*100) / 100,
		GoalDifference: f.GoalDifference(),
		Form:           f.FormString(),
	}
}
