package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"axioma-bot/internal/integrations/openai"
)

type ErrorCode string

const (
	ErrorRateLimited ErrorCode = "RATE_LIMITED"
	ErrorTimeout     ErrorCode = "TIMEOUT"
	ErrorAuth        ErrorCode = "AUTH"
	ErrorUpstream    ErrorCode = "UPSTREAM_ERROR"
	ErrorEmptyReply  ErrorCode = "EMPTY_REPLY"
)

// UpstreamError is a categorized completion failure.
type UpstreamError struct {
	Category ErrorCode
	// Status is the upstream HTTP status, zero for transport errors.
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (status %d)", e.Category, e.Status)
	}
	return fmt.Sprintf("usecase: %s (status %d): %v", e.Category, e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newUpstreamError(category ErrorCode, status int, err error) *UpstreamError {
	return &UpstreamError{Category: category, Status: status, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func isRateLimited(err error) bool {
	status, ok := upstreamStatusCode(err)
	return ok && status == http.StatusTooManyRequests
}

func categorize(err error) *UpstreamError {
	var already *UpstreamError
	if errors.As(err, &already) {
		return already
	}
	if errors.Is(err, openai.ErrNoChoices) {
		return newUpstreamError(ErrorEmptyReply, 0, err)
	}
	if status, ok := upstreamStatusCode(err); ok {
		switch status {
		case http.StatusTooManyRequests:
			return newUpstreamError(ErrorRateLimited, status, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return newUpstreamError(ErrorAuth, status, err)
		default:
			return newUpstreamError(ErrorUpstream, status, err)
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newUpstreamError(ErrorTimeout, 0, err)
	}
	return newUpstreamError(ErrorUpstream, 0, err)
}
