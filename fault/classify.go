package fault

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// Classify maps err into the taxonomy.
//
// An error that already carries a classification (a *Error anywhere in its
// chain) is returned unchanged. Otherwise the cause is inspected in order:
// context errors, network timeouts, connection-level failures, and finally
// message keywords. Anything left over is KindUnknown.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	return &Error{Kind: classifyCause(err), Err: err}
}

func classifyCause(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) {
		return KindTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return KindNotFound
		}
		return KindTransient
	}

	return classifyMessage(err.Error())
}

// keyword rules are checked in order; the first match wins.
var messageRules = []struct {
	kind     Kind
	keywords []string
}{
	{KindRateLimited, []string{"rate limit", "too many requests", "429"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNotFound, []string{"not found", "404", "no such"}},
	{KindValidation, []string{"invalid", "malformed", "validation"}},
	{KindTransient, []string{"connection", "network", "unavailable", "reset by peer", "broken pipe"}},
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// FromStatus maps an HTTP status code to a kind.
// Success codes map to KindUnknown; callers should not classify them.
func FromStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusNotFound, code == http.StatusGone:
		return KindNotFound
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return KindValidation
	case code >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindUnknown
	}
}

// HTTPStatus maps a kind to the status code a server should answer with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransient:
		return http.StatusBadGateway
	case KindCancelled:
		// nginx convention for client closed request
		return 499
	default:
		return http.StatusInternalServerError
	}
}
