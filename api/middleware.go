package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jonwraymond/fixturefeed/auth"
	"github.com/jonwraymond/fixturefeed/observe"
)

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// accessLog logs one line per request.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		fields := []observe.Field{
			{Key: "request_id", Value: requestID(c)},
			{Key: "method", Value: req.Method},
			{Key: "path", Value: c.Path()},
			{Key: "status", Value: c.Response().Status},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		}
		if sub := auth.SubjectFromContext(req.Context()); sub != "" {
			fields = append(fields, observe.Field{Key: "subject", Value: sub})
		}
		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Warn(req.Context(), "request failed", fields...)
		} else {
			s.logger.Debug(req.Context(), "request served", fields...)
		}
		return nil
	}
}

// requireRole authenticates the caller and checks role. With no
// authenticator configured the routes are closed.
func (s *Server) requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.admin == nil {
				return echo.NewHTTPError(http.StatusForbidden, "administration is disabled")
			}

			req := c.Request()
			id, err := s.admin.Authenticate(req.Context(), req.Header)
			switch {
			case auth.IsUnauthenticated(err):
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="fixturefeed"`)
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error()).SetInternal(err)
			case err != nil:
				return err
			}
			if err := id.Require(role); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
			}

			c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
