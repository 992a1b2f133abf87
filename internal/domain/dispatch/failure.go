package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind is the closed taxonomy the dispatcher's retry/rotate decision
// is based on. The upstream client collaborator produces these; the
// dispatcher never inspects raw error text.
type FailureKind string

const (
	// KindRateLimited means the provider signalled its own quota is
	// exhausted for this credential.
	KindRateLimited FailureKind = "rate_limited"
	// KindAuthError means the credential was rejected.
	KindAuthError FailureKind = "auth_error"
	// KindServerError covers upstream 5xx-class responses.
	KindServerError FailureKind = "server_error"
	// KindTimeout covers deadline and cancellation failures.
	KindTimeout FailureKind = "timeout"
	// KindOther is request-specific and non-retriable; it surfaces to the
	// caller unchanged.
	KindOther FailureKind = "other"
)

// RotatesKey reports whether the dispatcher should abandon the current key
// and pick a different one.
func (k FailureKind) RotatesKey() bool {
	return k == KindRateLimited || k == KindAuthError
}

// RetriesSameKey reports whether the dispatcher should retry the same key
// with backoff before rotating.
func (k FailureKind) RetriesSameKey() bool {
	return k == KindServerError || k == KindTimeout
}

// Failure is a classified upstream error.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.Err != nil && f.Message != "":
		return fmt.Sprintf("[%s] %s: %v", f.Kind, f.Message, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("[%s] %v", f.Kind, f.Err)
	case f.StatusCode != 0:
		return fmt.Sprintf("[%s] status %d: %s", f.Kind, f.StatusCode, f.Message)
	default:
		return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a classified failure with a free-form message.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// FromStatusCode maps an upstream HTTP status to the failure taxonomy.
func FromStatusCode(status int, message string) *Failure {
	f := &Failure{StatusCode: status, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		f.Kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		f.Kind = KindAuthError
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		f.Kind = KindTimeout
	case status >= 500:
		f.Kind = KindServerError
	default:
		f.Kind = KindOther
	}
	return f
}

// Classify normalizes an arbitrary error into a Failure. Already-classified
// errors pass through; context and network timeouts map to KindTimeout;
// everything else is KindOther.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Failure{Kind: KindTimeout, Message: "request abandoned", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTimeout, Message: "network timeout", Err: err}
	}
	return &Failure{Kind: KindOther, Err: err}
}
