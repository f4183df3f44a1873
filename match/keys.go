package match

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jonwraymond/fixturefeed/fault"
)

// DateLayout is the calendar-day layout used in fixture keys.
const DateLayout = "2006-01-02"

// Key namespaces.
const (
	NamespaceMatches = "matches"
	NamespaceTeam    = "team"
	NamespaceCompare = "compare"
	NamespaceMatch   = "match"
)

// NormalizeTeam folds a team name into its canonical key form: accents
// stripped, lower case, separators removed, inner whitespace collapsed.
//
// "  Atlético  Madrid " and "atletico madrid" normalize identically.
func NormalizeTeam(name string) string {
	folded, _, err := transform.String(accentFolder(), name)
	if err != nil {
		folded = name
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '|', ':', '_', '-', '.':
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// accentFolder is built per call; transform.Chain holds state and is not
// safe for concurrent reuse.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// SameTeam reports whether two names refer to the same team after
// normalization.
func SameTeam(a, b string) bool {
	na := NormalizeTeam(a)
	return na != "" && na == NormalizeTeam(b)
}

// MatchesKey is the key for one calendar day of fixtures, e.g.
// "matches:2024-05-01". The day is taken in date's own location.
func MatchesKey(date time.Time) string {
	return NamespaceMatches + ":" + date.Format(DateLayout)
}

// TeamKey is the key for a team's recent results.
func TeamKey(team string) (string, error) {
	n := NormalizeTeam(team)
	if n == "" {
		return "", fault.New(fault.KindValidation, "team name is empty")
	}
	return NamespaceTeam + ":" + n, nil
}

// CompareKey is the key for a head-to-head comparison. Team order does not
// matter: CompareKey(a, b) == CompareKey(b, a).
func CompareKey(a, b string) (string, error) {
	na, nb := NormalizeTeam(a), NormalizeTeam(b)
	if na == "" || nb == "" {
		return "", fault.New(fault.KindValidation, "both team names are required")
	}
	if na == nb {
		return "", fault.New(fault.KindValidation, fmt.Sprintf("cannot compare %q with itself", a))
	}
	if nb < na {
		na, nb = nb, na
	}
	return NamespaceCompare + ":" + na + "|" + nb, nil
}

// MatchKey is the key for a single fixture.
func MatchKey(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", fault.New(fault.KindValidation, "match id is empty")
	}
	return NamespaceMatch + ":" + id, nil
}

// ParseDate parses a YYYY-MM-DD day in loc. An empty string yields today in
// loc according to now.
func ParseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "today") {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fault.Wrap(fault.KindValidation, err, fmt.Sprintf("date %q must be YYYY-MM-DD", s))
	}
	return day, nil
}
