// Package apperr classifies failures crossing component boundaries so
// callers can decide whether to retry, reject or surface them.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimit         Kind = "rate_limit"
	KindTimeout           Kind = "timeout"
	KindQuoteUnavailable  Kind = "quote_unavailable"
	KindExecution         Kind = "execution"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindUnavailable       Kind = "unavailable"
	KindRejected          Kind = "rejected"
	KindUnknown           Kind = "unknown"
)

// Error carries a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.Timeout)
// works against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	Validation        = &Error{Kind: KindValidation}
	RateLimit         = &Error{Kind: KindRateLimit}
	Timeout           = &Error{Kind: KindTimeout}
	QuoteUnavailable  = &Error{Kind: KindQuoteUnavailable}
	Execution         = &Error{Kind: KindExecution}
	InsufficientFunds = &Error{Kind: KindInsufficientFunds}
	NotFound          = &Error{Kind: KindNotFound}
	Unavailable       = &Error{Kind: KindUnavailable}
	Rejected          = &Error{Kind: KindRejected}
)

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost classified error in the chain.
// Context deadlines map to KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether the failure is transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTimeout, KindUnavailable:
		return true
	}
	return false
}
