package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jonwraymond/fixturefeed/auth"
	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/match"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
	"github.com/jonwraymond/fixturefeed/service"
)

const recentErrorLimit = 20

// GET /v1/matches?date=YYYY-MM-DD&stale=false
func (s *Server) getMatches(c echo.Context) error {
	date, err := match.ParseDate(c.QueryParam("date"), s.svc.Location(), s.now())
	if err != nil {
		return err
	}
	stale, err := boolParam(c, "stale", true)
	if err != nil {
		return err
	}

	list, err := s.svc.MatchesOn(c.Request().Context(), date, stale)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

type teamFormResponse struct {
	match.TeamForm
	Form  string `json:"form"`
	Stale bool   `json:"stale"`
}

// GET /v1/teams/:team?stale=false
func (s *Server) getTeamForm(c echo.Context) error {
	team, err := pathParam(c, "team")
	if err != nil {
		return err
	}
	stale, err := boolParam(c, "stale", true)
	if err != nil {
		return err
	}

	form, wasStale, err := s.svc.TeamForm(c.Request().Context(), team, stale)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, teamFormResponse{TeamForm: form, Form: form.FormString(), Stale: wasStale})
}

// GET /v1/compare?a=&b=
func (s *Server) getCompare(c echo.Context) error {
	report, err := s.svc.CompareTeams(c.Request().Context(), c.QueryParam("a"), c.QueryParam("b"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GET /v1/suggest?date=
func (s *Server) getSuggest(c echo.Context) error {
	date, err := match.ParseDate(c.QueryParam("date"), s.svc.Location(), s.now())
	if err != nil {
		return err
	}
	report, err := s.svc.Suggest(c.Request().Context(), date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type statsResponse struct {
	service.Stats
	Upstream     *resilience.CircuitBreakerMetrics `json:"upstream,omitempty"`
	RecentErrors []recentError                     `json:"recent_errors,omitempty"`
}

type recentError struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
	At      string `json:"at"`
}

// GET /v1/stats
func (s *Server) getStats(c echo.Context) error {
	resp := statsResponse{Stats: s.svc.Stats()}
	if s.breaker != nil {
		m := s.breaker.Metrics()
		resp.Upstream = &m
	}
	for _, r := range s.svc.RecentErrors(recentErrorLimit) {
		resp.RecentErrors = append(resp.RecentErrors, recentError{
			Kind:    r.Kind.String(),
			Op:      r.Op,
			Key:     r.Key,
			Message: r.Message,
			At:      r.At.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// GET /v1/version
func (s *Server) getVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": s.version})
}

// GET /v1/cache/keys?pattern=
func (s *Server) listKeys(c echo.Context) error {
	keys := s.svc.Keys(c.Request().Context(), c.QueryParam("pattern"))
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// DELETE /v1/cache/:key
func (s *Server) invalidateKey(c echo.Context) error {
	key, err := pathParam(c, "key")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.svc.Invalidate(ctx, key); err != nil {
		return err
	}
	s.logger.Info(ctx, "cache key invalidated",
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "subject", Value: auth.SubjectFromContext(ctx)},
	)
	return c.NoContent(http.StatusNoContent)
}

// DELETE /v1/cache
func (s *Server) clearCache(c echo.Context) error {
	ctx := c.Request().Context()
	n := s.svc.Clear(ctx)
	s.logger.Info(ctx, "cache cleared",
		observe.Field{Key: "entries", Value: n},
		observe.Field{Key: "subject", Value: auth.SubjectFromContext(ctx)},
	)
	return c.JSON(http.StatusOK, map[string]int{"cleared": n})
}

func boolParam(c echo.Context, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fault.New(fault.KindValidation, name+" must be true or false")
	}
	return v, nil
}

// pathParam returns the unescaped value of a path parameter. Echo routes on
// the raw path when the request has one, so values may arrive escaped.
func pathParam(c echo.Context, name string) (string, error) {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", fault.Wrap(fault.KindValidation, err, name+" is not a valid path segment")
	}
	return v, nil
}
