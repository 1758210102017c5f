package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// TransportKind classifies model API failures so callers can distinguish
// rate limiting from credential problems without parsing provider strings.
type TransportKind string

const (
	TransportRateLimited     TransportKind = "rate_limited"
	TransportTimeout         TransportKind = "timeout"
	TransportUnauthenticated TransportKind = "unauthenticated"
	TransportAPI             TransportKind = "api"
)

// TransportError wraps a failed model round-trip. The controller never
// retries these; whether to retry a finding is the caller's decision.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsTransportError extracts a TransportError from an error chain.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	ok := errors.As(err, &te)
	return te, ok
}

// classifyTransportError maps SDK and network errors onto the transport
// taxonomy. Provider SDKs surface HTTP status codes on their error types;
// context deadlines and net timeouts both count as timeouts.
func classifyTransportError(err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}

	status := 0
	var oaiErr *openai.Error
	var antErr *anthropic.Error
	switch {
	case errors.As(err, &oaiErr):
		status = oaiErr.StatusCode
	case errors.As(err, &antErr):
		status = antErr.StatusCode
	}

	switch {
	case status == 429:
		return &TransportError{Kind: TransportRateLimited, Err: err}
	case status == 401 || status == 403:
		return &TransportError{Kind: TransportUnauthenticated, Err: err}
	case status == 408 || status == 504:
		return &TransportError{Kind: TransportTimeout, Err: err}
	default:
		return &TransportError{Kind: TransportAPI, Err: err}
	}
}
