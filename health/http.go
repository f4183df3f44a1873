package health

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// httpCode maps an overall status to a probe response code. Degraded still
// serves traffic.
func httpCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writePlain(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// LivenessHandler answers OK for as long as the process can serve at all.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writePlain(w, http.StatusOK, "OK")
	}
}

var readinessBody = map[Status]string{
	StatusHealthy:   "OK",
	StatusDegraded:  "DEGRADED",
	StatusUnhealthy: "UNHEALTHY",
}

// ReadinessHandler runs every check and answers with the overall status.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := agg.CheckAll(r.Context()).Status
		body, ok := readinessBody[status]
		if !ok {
			body = readinessBody[StatusUnhealthy]
		}
		writePlain(w, httpCode(status), body)
	}
}

type checkJSON struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type reportResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp"`
	Checks    map[string]checkJSON `json:"checks"`
}

func toJSON(report Report) reportResponse {
	out := reportResponse{
		Status:    report.Status.String(),
		Timestamp: report.Timestamp.UTC().Format(time.RFC3339),
		Checks:    make(map[string]checkJSON, len(report.Checks)),
	}
	for name, res := range report.Checks {
		c := checkJSON{
			Status:   res.Status.String(),
			Message:  res.Message,
			Duration: res.Duration.String(),
			Details:  res.Details,
		}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		out.Checks[name] = c
	}
	return out
}

// DetailedHandler answers every check result as JSON.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := agg.CheckAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpCode(report.Status))
		_ = json.NewEncoder(w).Encode(toJSON(report))
	}
}
