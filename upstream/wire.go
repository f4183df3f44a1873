package upstream

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jonwraymond/fixturefeed/match"
	"github.com/jonwraymond/fixturefeed/observe"
)

// Provider payloads. Field names follow the provider, not the data model.

type fixturesPayload struct {
	Fixtures []wireFixture `json:"fixtures"`
}

type wireFixture struct {
	ID      string    `json:"id"`
	Home    string    `json:"home_team"`
	Away    string    `json:"away_team"`
	Kickoff string    `json:"kickoff"`
	Status  string    `json:"status"`
	League  string    `json:"league"`
	Odds    *wireOdds `json:"odds"`
}

type wireOdds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

type teamFormPayload struct {
	Team    string       `json:"team"`
	Results []wireResult `json:"results"`
}

type wireResult struct {
	MatchID  string `json:"match_id"`
	Opponent string `json:"opponent"`
	Kickoff  string `json:"kickoff"`
	Venue    string `json:"venue"`
	Scored   int    `json:"goals_for"`
	Conceded int    `json:"goals_against"`
}

var kickoffLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseKickoff parses a provider timestamp as UTC. Timestamps without a
// zone are taken as UTC.
func parseKickoff(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range kickoffLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeFixtures converts provider fixtures into matches. Fixtures that
// fail validation are dropped; unusable odds are dropped but the fixture is
// kept. The result is sorted by kickoff then ID and capped at limit.
func normalizeFixtures(ctx context.Context, in []wireFixture, limit int, logger observe.Logger) []match.Match {
	out := make([]match.Match, 0, len(in))
	seen := make(map[string]bool, len(in))

	for _, w := range in {
		kickoff, ok := parseKickoff(w.Kickoff)
		if !ok {
			logger.Debug(ctx, "skipping fixture without kickoff", observe.Field{Key: "fixture", Value: w.ID})
			continue
		}

		m := match.Match{
			ID:      strings.TrimSpace(w.ID),
			Home:    strings.TrimSpace(w.Home),
			Away:    strings.TrimSpace(w.Away),
			Kickoff: kickoff,
			Status:  match.ParseStatus(w.Status),
			League:  strings.TrimSpace(w.League),
		}
		if m.ID == "" {
			m.ID = match.NewID(m.Home, m.Away, m.Kickoff)
		}
		if w.Odds != nil {
			odds := match.Odds{Home: w.Odds.Home, Draw: w.Odds.Draw, Away: w.Odds.Away}
			if odds.Validate() == nil {
				m.Odds = &odds
			}
		}

		if err := m.Validate(); err != nil {
			logger.Debug(ctx, "skipping invalid fixture", observe.Field{Key: "error", Value: err})
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Kickoff.Equal(out[j].Kickoff) {
			return out[i].Kickoff.Before(out[j].Kickoff)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalizeForm converts a provider history into a TeamForm, newest first,
// capped at limit. Results without an opponent or kickoff are dropped.
func normalizeForm(team string, in teamFormPayload, limit int) match.TeamForm {
	if name := strings.TrimSpace(in.Team); name != "" {
		team = name
	}

	form := match.TeamForm{Team: team, Results: make([]match.TeamResult, 0, len(in.Results))}
	for _, w := range in.Results {
		kickoff, ok := parseKickoff(w.Kickoff)
		opponent := strings.TrimSpace(w.Opponent)
		if !ok || opponent == "" || match.SameTeam(opponent, team) {
			continue
		}
		if w.Scored < 0 || w.Conceded < 0 {
			continue
		}

		home := !strings.EqualFold(strings.TrimSpace(w.Venue), "away")
		id := strings.TrimSpace(w.MatchID)
		if id == "" {
			if home {
				id = match.NewID(team, opponent, kickoff)
			} else {
				id = match.NewID(opponent, team, kickoff)
			}
		}

		form.Results = append(form.Results, match.TeamResult{
			MatchID:      id,
			Opponent:     opponent,
			Kickoff:      kickoff,
			Home:         home,
			GoalsFor:     w.Scored,
			GoalsAgainst: w.Conceded,
		})
	}

	sort.SliceStable(form.Results, func(i, j int) bool {
		return form.Results[i].Kickoff.After(form.Results[j].Kickoff)
	})
	if len(form.Results) > limit {
		form.Results = form.Results[:limit]
	}
	return form
}
