package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/kjannette/trahn-signals/internal/apperr"
)

// Classify maps a transport error or non-2xx response to an apperr kind.
// It returns nil for 2xx responses. The response body is left open.
func Classify(op string, resp *http.Response, err error) error {
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.Canceled) {
			return canceled(op, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return apperr.New(apperr.KindTimeout, op, err)
		}
		return apperr.New(apperr.KindUnavailable, op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.New(apperr.KindRateLimit, op, cause)
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, op, cause)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return apperr.New(apperr.KindTimeout, op, cause)
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUnavailable, op, cause)
	}
	return apperr.New(apperr.KindUnknown, op, cause)
}

// canceled keeps a caller's cancellation out of the retryable kinds so it
// never counts as a failure against a shared limiter.
func canceled(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
