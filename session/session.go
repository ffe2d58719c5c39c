// Package session owns the authenticated session: the credential pair, the
// principal, and the status transitions between them. The Machine is the
// single writer of session state; the request gateway and the RBAC guard
// only ever read from it.
package session

// Status is the session lifecycle state.
type Status string

const (
	// StatusUnauthenticated means no credential pair or principal is held.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusAuthenticating means a login exchange is in progress.
	StatusAuthenticating Status = "authenticating"
	// StatusAuthenticated means the credential pair and principal are both
	// present and the store has been synchronized.
	StatusAuthenticated Status = "authenticated"
	// StatusLoggedOut is the transient state during logout teardown, before
	// the machine settles back to StatusUnauthenticated.
	StatusLoggedOut Status = "logged_out"
)

// Transition is the event payload emitted once per status change.
type Transition struct {
	From Status
	To   Status
}
