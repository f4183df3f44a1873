// Package match defines the fixture, odds, and team-form records produced by
// the upstream fetch and consumed by comparison and suggestion logic.
//
// Values are immutable once fetched: a later fetch produces new values and
// callers must not modify slices returned from a cache.
package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

// Status is the lifecycle state of a fixture.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps upstream status strings onto a Status.
// Unrecognized values yield StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled", "upcoming", "not_started", "ns", "fixture":
		return StatusScheduled
	case "live", "in_play", "inplay", "in_progress", "1h", "2h", "ht":
		return StatusLive
	case "finished", "ft", "full_time", "ended", "final":
		return StatusFinished
	case "cancelled", "canceled", "postponed", "abandoned":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Odds is a decimal odds snapshot for the three match outcomes.
type Odds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Validate reports whether every price is a usable decimal price (> 1.0).
func (o Odds) Validate() error {
	if o.Home <= 1 || o.Draw <= 1 || o.Away <= 1 {
		return fault.New(fault.KindValidation,
			fmt.Sprintf("odds must be greater than 1.0, got %.2f/%.2f/%.2f", o.Home, o.Draw, o.Away))
	}
	return nil
}

// Implied returns the implied probability of each outcome (1/odds), without
// removing the bookmaker margin.
func (o Odds) Implied() (home, draw, away float64) {
	return 1 / o.Home, 1 / o.Draw, 1 / o.Away
}

// Match is one fixture.
type Match struct {
	ID      string    `json:"id"`
	Home    string    `json:"home"`
	Away    string    `json:"away"`
	Kickoff time.Time `json:"kickoff"`
	Status  Status    `json:"status"`
	League  string    `json:"league,omitempty"`
	Odds    *Odds     `json:"odds,omitempty"`
}

// Validate checks the identifiers a consumer relies on.
func (m Match) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fault.New(fault.KindValidation, "match id is empty")
	case strings.TrimSpace(m.Home) == "" || strings.TrimSpace(m.Away) == "":
		return fault.New(fault.KindValidation, fmt.Sprintf("match %s: team names are required", m.ID))
	case SameTeam(m.Home, m.Away):
		return fault.New(fault.KindValidation, fmt.Sprintf("match %s: home and away are the same team", m.ID))
	case m.Kickoff.IsZero():
		return fault.New(fault.KindValidation, fmt.Sprintf("match %s: kickoff is missing", m.ID))
	}
	return nil
}

// HasOdds reports whether the match carries an odds snapshot.
func (m Match) HasOdds() bool {
	return m.Odds != nil
}

// Involves reports whether team plays in the match.
func (m Match) Involves(team string) bool {
	return SameTeam(m.Home, team) || SameTeam(m.Away, team)
}

// NewID derives the deterministic fixture identifier
// home_away_YYYYMMDD_HHMM from the normalized team names and the UTC kickoff.
func NewID(home, away string, kickoff time.Time) string {
	h := strings.ReplaceAll(NormalizeTeam(home), " ", "_")
	a := strings.ReplaceAll(NormalizeTeam(away), " ", "_")
	return h + "_" + a + "_" + kickoff.UTC().Format("20060102_1504")
}

// Outcome is the result of a match from one side's perspective.
type Outcome string

const (
	OutcomeWin  Outcome = "W"
	OutcomeDraw Outcome = "D"
	OutcomeLoss Outcome = "L"
)

// TeamResult is one completed match in a team's recent history.
type TeamResult struct {
	MatchID      string    `json:"match_id"`
	Opponent     string    `json:"opponent"`
	Kickoff      time.Time `json:"kickoff"`
	Home         bool      `json:"home"`
	GoalsFor     int       `json:"goals_for"`
	GoalsAgainst int       `json:"goals_against"`
}

// Outcome returns W, D, or L.
func (r TeamResult) Outcome() Outcome {
	switch {
	case r.GoalsFor > r.GoalsAgainst:
		return OutcomeWin
	case r.GoalsFor < r.GoalsAgainst:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// TeamForm is a team's recent results, newest first.
type TeamForm struct {
	Team    string       `json:"team"`
	Results []TeamResult `json:"results"`
}

// Validate checks the team identifier and result sanity.
func (f TeamForm) Validate() error {
	if strings.TrimSpace(f.Team) == "" {
		return fault.New(fault.KindValidation, "team name is empty")
	}
	for _, r := range f.Results {
		if r.GoalsFor < 0 || r.GoalsAgainst < 0 {
			return fault.New(fault.KindValidation, fmt.Sprintf("team %s: negative score in %s", f.Team, r.MatchID))
		}
		if SameTeam(r.Opponent, f.Team) {
			return fault.New(fault.KindValidation, fmt.Sprintf("team %s: plays itself in %s", f.Team, r.MatchID))
		}
	}
	return nil
}

// Record counts wins, draws, and losses.
func (f TeamForm) Record() (wins, draws, losses int) {
	for _, r := range f.Results {
		switch r.Outcome() {
		case OutcomeWin:
			wins++
		case OutcomeDraw:
			draws++
		default:
			losses++
		}
	}
	return wins, draws, losses
}

// Points uses three points for a win and one for a draw.
func (f TeamForm) Points() int {
	w, d, _ := f.Record()
	return 3*w + d
}

// GoalDifference is goals scored minus goals conceded.
func (f TeamForm) GoalDifference() int {
	diff := 0
	for _, r := range f.Results {
		diff += r.GoalsFor - r.GoalsAgainst
	}
	return diff
}

// PointsPerGame is zero for an empty history.
func (f TeamForm) PointsPerGame() float64 {
	if len(f.Results) == 0 {
		return 0
	}
	return float64(f.Points()) / float64(len(f.Results))
}

// FormString renders outcomes newest first, e.g. "WWDLW".
func (f TeamForm) FormString() string {
	var b strings.Builder
	for _, r := range f.Results {
		b.WriteString(string(r.Outcome()))
	}
	return b.String()
}
