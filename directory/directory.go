// Package directory is the typed client for the role-gated user directory
// and profile endpoints. Every call goes through the request gateway, so
// credential attachment, renewal, and failure classification are inherited;
// destructive operations are additionally checked against the RBAC guard
// before any network traffic happens.
package directory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/athishulleri01/erp-session-core/gateway"
	"github.com/athishulleri01/erp-session-core/rbac"
	"github.com/athishulleri01/erp-session-core/users"
)

// Directory endpoints relative to the API base URL.
const (
	RouteUsers   = "/auth/users/"
	RouteProfile = "/auth/profile/"
)

// ErrDenied is returned when the RBAC guard denies the operation for the
// current role. No network call is made.
var ErrDenied = errors.New("directory: capability denied for role")

// Session is the read-only session view the directory needs for RBAC checks
// and principal refresh.
type Session interface {
	Role() users.RoleType
	UpdatePrincipal(ctx context.Context, u users.User) error
}

// CreateUser is the payload for creating a directory record. Role may be
// set because creation is an admin-only operation.
type CreateUser struct {
	Username   string         `json:"username"`
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Role       users.RoleType `json:"role"`
	Phone      string         `json:"phone,omitempty"`
	Department string         `json:"department,omitempty"`
}

// UpdateProfile is the self-edit payload. It deliberately has no role or
// username field: those are identity fields and are never client-editable.
type UpdateProfile struct {
	Email      string        `json:"email,omitempty"`
	FirstName  string        `json:"first_name,omitempty"`
	LastName   string        `json:"last_name,omitempty"`
	Phone      string        `json:"phone,omitempty"`
	Department string        `json:"department,omitempty"`
	Profile    users.Profile `json:"profile"`
}

// Directory exposes the user directory and profile operations.
type Directory struct {
	gw      *gateway.Gateway
	session Session
}

// New creates a Directory over the given gateway and session view.
func New(gw *gateway.Gateway, sess Session) (*Directory, error) {
	if gw == nil {
		return nil, errors.New("[directory.New] gateway is required")
	}
	if sess == nil {
		return nil, errors.New("[directory.New] session is required")
	}
	return &Directory{gw: gw, session: sess}, nil
}

// List returns the user directory. Admins and managers only.
func (d *Directory) List(ctx context.Context) ([]users.User, error) {
	if !rbac.Can(d.session.Role(), rbac.ActionViewDirectory) {
		return nil, errors.Wrap(ErrDenied, "[Directory.List]")
	}

	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodGet, Path: RouteUsers})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.List]")
	}

	var list []users.User
	if err := resp.Decode(&list); err != nil {
		return nil, errors.Wrap(err, "[Directory.List]")
	}
	return list, nil
}

// Create adds a new user record. Admin only.
func (d *Directory) Create(ctx context.Context, req CreateUser) (*users.User, error) {
	if !rbac.Can(d.session.Role(), rbac.ActionCreateUser) {
		return nil, errors.Wrap(ErrDenied, "[Directory.Create]")
	}

	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodPost, Path: RouteUsers, Body: req})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.Create]")
	}

	var created users.User
	if err := resp.Decode(&created); err != nil {
		return nil, errors.Wrap(err, "[Directory.Create]")
	}
	return &created, nil
}

// Update replaces another user's record. Admin only; role reassignment
// additionally requires the assign-role capability.
func (d *Directory) Update(ctx context.Context, id int64, u users.User) (*users.User, error) {
	role := d.session.Role()
	if !rbac.Can(role, rbac.ActionEditUser) {
		return nil, errors.Wrap(ErrDenied, "[Directory.Update]")
	}
	if u.Role != "" && !rbac.Can(role, rbac.ActionAssignRole) {
		return nil, errors.Wrap(ErrDenied, "[Directory.Update] role reassignment")
	}

	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodPut, Path: userPath(id), Body: u})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.Update]")
	}

	var updated users.User
	if err := resp.Decode(&updated); err != nil {
		return nil, errors.Wrap(err, "[Directory.Update]")
	}
	return &updated, nil
}

// Patch partially updates another user's record. Admin only. Fields named
// in the RBAC guard as identity fields require the assign-role capability.
func (d *Directory) Patch(ctx context.Context, id int64, fields map[string]any) (*users.User, error) {
	role := d.session.Role()
	if !rbac.Can(role, rbac.ActionEditUser) {
		return nil, errors.Wrap(ErrDenied, "[Directory.Patch]")
	}
	if _, hasRole := fields["role"]; hasRole && !rbac.Can(role, rbac.ActionAssignRole) {
		return nil, errors.Wrap(ErrDenied, "[Directory.Patch] role reassignment")
	}

	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodPatch, Path: userPath(id), Body: fields})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.Patch]")
	}

	var updated users.User
	if err := resp.Decode(&updated); err != nil {
		return nil, errors.Wrap(err, "[Directory.Patch]")
	}
	return &updated, nil
}

// Delete removes a user record. Admin only.
func (d *Directory) Delete(ctx context.Context, id int64) error {
	if !rbac.Can(d.session.Role(), rbac.ActionDeleteUser) {
		return errors.Wrap(ErrDenied, "[Directory.Delete]")
	}

	if _, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodDelete, Path: userPath(id)}); err != nil {
		return errors.Wrap(err, "[Directory.Delete]")
	}
	return nil
}

// Profile fetches the caller's own record and refreshes the session
// principal with it.
func (d *Directory) Profile(ctx context.Context) (*users.User, error) {
	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodGet, Path: RouteProfile})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.Profile]")
	}

	var me users.User
	if err := resp.Decode(&me); err != nil {
		return nil, errors.Wrap(err, "[Directory.Profile]")
	}
	if err := d.session.UpdatePrincipal(ctx, me); err != nil {
		return nil, errors.Wrap(err, "[Directory.Profile] refresh principal")
	}
	return &me, nil
}

// SaveProfile submits a self-edit and refreshes the session principal with
// the provider's updated record. The payload type cannot carry role or
// username, enforcing the self-edit restriction structurally.
func (d *Directory) SaveProfile(ctx context.Context, req UpdateProfile) (*users.User, error) {
	if !rbac.Can(d.session.Role(), rbac.ActionEditProfile) {
		return nil, errors.Wrap(ErrDenied, "[Directory.SaveProfile]")
	}

	resp, err := d.gw.Send(ctx, gateway.Request{Method: http.MethodPut, Path: RouteProfile, Body: req})
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.SaveProfile]")
	}

	var me users.User
	if err := resp.Decode(&me); err != nil {
		return nil, errors.Wrap(err, "[Directory.SaveProfile]")
	}
	if err := d.session.UpdatePrincipal(ctx, me); err != nil {
		return nil, errors.Wrap(err, "[Directory.SaveProfile] refresh principal")
	}
	return &me, nil
}

func userPath(id int64) string {
	return fmt.Sprintf("%s%d/", RouteUsers, id)
}
