package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// MalformedError represents a request that contradicts itself, for example a
// body id that does not match the path id. Nothing is stored on this path.
type MalformedError struct {
	Reason string
}

func (e MalformedError) Error() string {
	if e.Reason == "" {
		return "malformed request"
	}
	return e.Reason
}

func (e MalformedError) Is(target error) bool {
	_, ok := target.(MalformedError)
	if ok {
		return true
	}
	_, ok = target.(*MalformedError)
	return ok
}

var ErrMalformed = MalformedError{}

// UpstreamError represents a failed call to a peer during registration or
// replication.
type UpstreamError struct {
	Peer string
	Err  error
}

func (e UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("peer %s unavailable", e.Peer)
	}
	return fmt.Sprintf("peer %s unavailable: %v", e.Peer, e.Err)
}

func (e UpstreamError) Unwrap() error { return e.Err }

func (e UpstreamError) Is(target error) bool {
	_, ok := target.(UpstreamError)
	if ok {
		return true
	}
	_, ok = target.(*UpstreamError)
	return ok
}

var ErrUpstream = UpstreamError{}

// Auth and registration sentinels.
var (
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrRegistrationFailed = fmt.Errorf("registration failed")
	// ErrNotAllowed distinguishes deleting an already-gone token from a
	// successful unregistration, so retries stay observable.
	ErrNotAllowed = fmt.Errorf("method not allowed")
)
