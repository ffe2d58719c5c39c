// Package apierr defines the error taxonomy shared by the identity client,
// the request gateway, and the session state machine.
//
// Only ErrUnauthorized ever triggers an automatic session transition (forced
// logout). Every other kind is returned to the caller without touching
// session state.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationRejected indicates the identity provider refused a login,
	// registration, or update payload. The provider's rejection detail is
	// carried by a Rejection wrapper and is safe to display to the user.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrUnauthorized indicates the access credential was rejected and
	// renewal failed or was unavailable. The session is torn down.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the credential was accepted but the session's
	// role does not permit the operation. No session state is changed.
	ErrForbidden = errors.New("forbidden")

	// ErrNetworkFailure indicates a transport-level failure. Transient; the
	// caller may retry manually. No session state is changed.
	ErrNetworkFailure = errors.New("network failure")

	// ErrServerFailure indicates a non-2xx response from a valid,
	// authenticated call unrelated to authorization.
	ErrServerFailure = errors.New("server failure")

	// ErrNoCredentials indicates an operation that requires a stored
	// credential pair was attempted without one.
	ErrNoCredentials = errors.New("no stored credentials")

	// ErrRenewalUnavailable indicates a renewal was requested while no
	// renewal credential is present. No network call is made.
	ErrRenewalUnavailable = errors.New("no renewal credential available")
)

// Rejection carries the identity provider's verbatim rejection of a
// login/registration/update payload so the UI layer can display it next to
// the offending fields.
type Rejection struct {
	Status int                 // HTTP status returned by the provider
	Detail string              // top-level rejection text, if any
	Fields map[string][]string // per-field rejection messages
}

func (r *Rejection) Error() string {
	var b strings.Builder
	b.WriteString("validation rejected")
	if r.Detail != "" {
		fmt.Fprintf(&b, ": %s", r.Detail)
	}
	for field, msgs := range r.Fields {
		fmt.Fprintf(&b, "; %s: %s", field, strings.Join(msgs, ", "))
	}
	return b.String()
}

// Unwrap makes errors.Is(err, ErrValidationRejected) hold for any Rejection.
func (r *Rejection) Unwrap() error { return ErrValidationRejected }

// ServerError carries the status and body of a non-2xx, non-authorization
// response so callers can inspect it without this layer interpreting it.
type ServerError struct {
	Status int
	Body   []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server failure: status %d", e.Status)
}

// Unwrap makes errors.Is(err, ErrServerFailure) hold for any ServerError.
func (e *ServerError) Unwrap() error { return ErrServerFailure }
