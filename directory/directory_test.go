package directory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/athishulleri01/erp-session-core/directory"
	"github.com/athishulleri01/erp-session-core/gateway"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/identity/idpfake"
	"github.com/athishulleri01/erp-session-core/session"
	"github.com/athishulleri01/erp-session-core/store"
	"github.com/athishulleri01/erp-session-core/users"
)

type testFixture struct {
	provider *idpfake.FakeProvider
	machine  *session.Machine
	dir      *directory.Directory

	lastMethod string
	lastPath   string
	lastBody   []byte
	requests   int
}

func setupTestFixture(t *testing.T, role users.RoleType) *testFixture {
	t.Helper()

	f := &testFixture{provider: idpfake.New()}
	f.provider.AddUser(users.User{ID: 1, Username: "ada", Role: role}, "pw")

	machine, err := session.NewMachine(f.provider, store.NewMemoryStore())
	require.NoError(t, err)
	f.machine = machine

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !f.provider.ValidAccess(token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		f.requests++
		f.lastMethod = r.Method
		f.lastPath = r.URL.Path
		f.lastBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == directory.RouteUsers && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]users.User{
				{ID: 1, Username: "ada", Role: users.RoleAdmin},
				{ID: 2, Username: "grace", Role: users.RoleEmployee},
			})
		case r.URL.Path == directory.RouteUsers && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(users.User{ID: 3, Username: "alan", Role: users.RoleEmployee})
		case r.URL.Path == directory.RouteProfile:
			json.NewEncoder(w).Encode(users.User{ID: 1, Username: "ada", Role: role, Phone: "5550001111"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(users.User{ID: 2, Username: "grace", Role: users.RoleEmployee})
		}
	}))
	t.Cleanup(srv.Close)

	gw, err := gateway.New(srv.URL, machine)
	require.NoError(t, err)

	dir, err := directory.New(gw, machine)
	require.NoError(t, err)
	f.dir = dir

	_, err = machine.Login(context.Background(), identity.Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)

	return f
}

func TestListAsManager(t *testing.T) {
	f := setupTestFixture(t, users.RoleManager)

	list, err := f.dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "grace", list[1].Username)
}

func TestListDeniedForEmployee(t *testing.T) {
	f := setupTestFixture(t, users.RoleEmployee)

	_, err := f.dir.List(context.Background())
	require.ErrorIs(t, err, directory.ErrDenied)
	require.Equal(t, 0, f.requests, "denied operations must not reach the network")
}

func TestCreateAdminOnly(t *testing.T) {
	f := setupTestFixture(t, users.RoleAdmin)

	created, err := f.dir.Create(context.Background(), directory.CreateUser{
		Username: "alan",
		Email:    "alan@example.com",
		Password: "pw",
		Role:     users.RoleEmployee,
	})
	require.NoError(t, err)
	require.Equal(t, "alan", created.Username)
	require.Equal(t, http.MethodPost, f.lastMethod)

	manager := setupTestFixture(t, users.RoleManager)
	_, err = manager.dir.Create(context.Background(), directory.CreateUser{Username: "x"})
	require.ErrorIs(t, err, directory.ErrDenied)
}

func TestDeleteAdminOnly(t *testing.T) {
	f := setupTestFixture(t, users.RoleAdmin)

	require.NoError(t, f.dir.Delete(context.Background(), 2))
	require.Equal(t, http.MethodDelete, f.lastMethod)
	require.Equal(t, "/auth/users/2/", f.lastPath)

	manager := setupTestFixture(t, users.RoleManager)
	err := manager.dir.Delete(context.Background(), 2)
	require.ErrorIs(t, err, directory.ErrDenied)
	require.Equal(t, 0, manager.requests)
}

func TestPatchRoleReassignmentRequiresAdmin(t *testing.T) {
	f := setupTestFixture(t, users.RoleAdmin)

	_, err := f.dir.Patch(context.Background(), 2, map[string]any{"role": "manager"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPatch, f.lastMethod)
}

func TestProfileRefreshesPrincipal(t *testing.T) {
	f := setupTestFixture(t, users.RoleEmployee)

	me, err := f.dir.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "5550001111", me.Phone)

	principal, ok := f.machine.Principal()
	require.True(t, ok)
	require.Equal(t, "5550001111", principal.Phone)
}

func TestSaveProfileNeverSendsIdentityFields(t *testing.T) {
	f := setupTestFixture(t, users.RoleEmployee)

	_, err := f.dir.SaveProfile(context.Background(), directory.UpdateProfile{
		FirstName: "Ada",
		Phone:     "5550002222",
		Profile:   users.Profile{Bio: "analyst"},
	})
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(f.lastBody, &sent))
	require.NotContains(t, sent, "role")
	require.NotContains(t, sent, "username")
	require.Equal(t, "Ada", sent["first_name"])
}
