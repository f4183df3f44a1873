package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"

	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/observe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// handleError answers classified failures with the status their kind maps
// to. Unclassified errors are logged and answered as 500 without detail.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := ErrorResponse{Error: "internal", Message: "internal error", RequestID: requestID(c)}

	var (
		ferr *fault.Error
		herr *echo.HTTPError
	)
	switch {
	case errors.As(err, &herr):
		status = herr.Code
		body.Error = strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
		body.Message = fmt.Sprint(herr.Message)
	case errors.As(err, &ferr):
		status = fault.HTTPStatus(ferr.Kind)
		body.Error = ferr.Kind.String()
		body.Message = ferr.Detail
		if body.Message == "" {
			body.Message = ferr.Kind.String()
		}
		if ferr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ferr.RetryAfter.Seconds()))))
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request error",
			observe.Field{Key: "request_id", Value: body.RequestID},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "write error response", observe.Field{Key: "error", Value: err})
	}
}

// jsonSerializer encodes responses with jsoniter.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body").SetInternal(err)
	}
	return nil
}
