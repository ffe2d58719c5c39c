// Package identity defines the contract with the remote identity provider:
// the unauthenticated endpoints that issue, renew, and revoke the session's
// credential pair.
package identity

import (
	"context"

	"github.com/athishulleri01/erp-session-core/users"
)

// Credentials is a login payload as produced by the login form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is a sign-up payload as produced by the registration form.
// Field validation happens provider-side; rejections come back verbatim as
// an apierr.Rejection.
type Registration struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// Grant is a successful authentication response: the credential pair plus
// the principal it was issued for.
type Grant struct {
	Access  string     `json:"access"`  // short-lived, sent on every request
	Renewal string     `json:"refresh"` // long-lived, sent only to the renewal endpoint
	User    users.User `json:"user"`
}

// Provider is the remote identity provider.
//
// Renew exchanges the renewal credential for a fresh access credential.
// Revoke invalidates the renewal credential server-side; it is best-effort
// from the session's point of view.
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) (*Grant, error)
	Register(ctx context.Context, reg Registration) (*users.User, error)
	Renew(ctx context.Context, renewal string) (access string, err error)
	Revoke(ctx context.Context, renewal string) error
}
