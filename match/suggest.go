package match

import (
	"fmt"
	"math"
	"sort"

	"github.com/jonwraymond/fixturefeed/fault"
)

// Pick is the outcome a recommendation backs.
type Pick string

const (
	PickHome Pick = "home"
	PickDraw Pick = "draw"
	PickAway Pick = "away"
)

// Recommendation is a betting suggestion for one fixture.
type Recommendation struct {
	MatchID        string  `json:"match_id"`
	Home           string  `json:"home"`
	Away           string  `json:"away"`
	Pick           Pick    `json:"pick"`
	Odds           float64 `json:"odds"`
	Confidence     int     `json:"confidence"`          // 1 (low) to 3 (high)
	ExpectedReturn float64 `json:"expected_return_pct"` // profit on a winning unit stake
	Reason         string  `json:"reason"`
}

// Rule thresholds for Suggest.
const (
	homeMinOdds    = 2.0
	homeMinImplied = 0.4
	awayMinOdds    = 2.5
	awayMinImplied = 0.3
	drawMinOdds    = 3.0
	confidenceHigh = 3
	confidenceMid  = 2
	confidenceLow  = 1
)

// Suggest produces one recommendation per fixture, highest odds first.
//
// It performs no I/O. Every match must pass Validate and carry valid odds;
// otherwise Suggest fails with a validation error and returns nothing.
func Suggest(matches []Match) ([]Recommendation, error) {
	if len(matches) == 0 {
		return nil, fault.New(fault.KindValidation, "no fixtures to analyse")
	}

	recs := make([]Recommendation, 0, len(matches))
	for _, m := range matches {
		if err := validatePriced(m); err != nil {
			return nil, err
		}
		recs = append(recs, recommend(m))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Odds != recs[j].Odds {
			return recs[i].Odds > recs[j].Odds
		}
		return recs[i].MatchID < recs[j].MatchID
	})
	return recs, nil
}

func validatePriced(m Match) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Odds == nil {
		return fault.New(fault.KindValidation, fmt.Sprintf("match %s has no odds", m.ID))
	}
	if err := m.Odds.Validate(); err != nil {
		return fault.Classify(err).WithKey(m.ID)
	}
	return nil
}

func recommend(m Match) Recommendation {
	o := *m.Odds
	pHome, _, pAway := o.Implied()

	rec := Recommendation{MatchID: m.ID, Home: m.Home, Away: m.Away}
	switch {
	case o.Home >= homeMinOdds && pHome > homeMinImplied:
		rec.Pick, rec.Odds, rec.Confidence = PickHome, o.Home, confidenceHigh
		rec.Reason = "home price is fair with a strong implied chance"
	case o.Away >= awayMinOdds && pAway > awayMinImplied:
		rec.Pick, rec.Odds, rec.Confidence = PickAway, o.Away, confidenceMid
		rec.Reason = "away price offers value"
	case o.Draw >= drawMinOdds:
		rec.Pick, rec.Odds, rec.Confidence = PickDraw, o.Draw, confidenceLow
		rec.Reason = "draw price is high enough to consider"
	default:
		rec.Pick, rec.Odds, rec.Confidence = PickHome, o.Home, confidenceMid
		rec.Reason = "conservative pick"
	}
	rec.ExpectedReturn = math.Round((rec.Odds-1)*1000) / 10
	return rec
}

// Priced returns the matches that carry an odds snapshot, preserving order.
func Priced(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.HasOdds() {
			out = append(out, m)
		}
	}
	return out
}

// OddsSummary holds the best price per outcome across a set of fixtures and
// the average price per outcome.
type OddsSummary struct {
	Count    int     `json:"count"`
	BestHome *Match  `json:"best_home,omitempty"`
	BestDraw *Match  `json:"best_draw,omitempty"`
	BestAway *Match  `json:"best_away,omitempty"`
	AvgHome  float64 `json:"avg_home"`
	AvgDraw  float64 `json:"avg_draw"`
	AvgAway  float64 `json:"avg_away"`
}

// AnalyzeOdds summarizes the priced fixtures in matches. Fixtures without
// odds are ignored; an empty summary has Count zero.
func AnalyzeOdds(matches []Match) OddsSummary {
	var s OddsSummary
	var sumHome, sumDraw, sumAway float64

	for i := range matches {
		m := &matches[i]
		if m.Odds == nil {
			continue
		}
		s.Count++
		sumHome += m.Odds.Home
		sumDraw += m.Odds.Draw
		sumAway += m.Odds.Away

		if s.BestHome == nil || m.Odds.Home > s.BestHome.Odds.Home {
			s.BestHome = m
		}
		if s.BestDraw == nil || m.Odds.Draw > s.BestDraw.Odds.Draw {
			s.BestDraw = m
		}
		if s.BestAway == nil || m.Odds.Away > s.BestAway.Odds.Away {
			s.BestAway = m
		}
	}

	if s.Count > 0 {
		n := float64(s.Count)
		s.AvgHome = sumHome / n
		s.AvgDraw = sumDraw / n
		s.AvgAway = sumAway / n
	}
	return s
}
