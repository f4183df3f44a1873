package fault

// Severity ranks how much a failure says about the health of the system,
// as opposed to a bad request.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// Severity of a kind. Caller-side kinds are low, upstream trouble that a
// retry may clear is medium, and an unclassified failure is high.
// Critical is never derived; it is for callers that know better.
func (k Kind) Severity() Severity {
	switch k {
	case KindTimeout, KindTransient, KindRateLimited:
		return SeverityMedium
	case KindUnknown:
		return SeverityHigh
	default:
		return SeverityLow
	}
}
