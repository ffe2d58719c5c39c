package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/athishulleri01/erp-session-core/apierr"
	"github.com/athishulleri01/erp-session-core/gateway"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/identity/idpfake"
	"github.com/athishulleri01/erp-session-core/session"
	"github.com/athishulleri01/erp-session-core/store"
	"github.com/athishulleri01/erp-session-core/users"
)

const (
	testUsername = "ada"
	testPassword = "correct horse battery staple"
)

// testFixture wires a fake identity provider, a session machine, and a
// resource server that honours only credentials the provider has minted.
type testFixture struct {
	provider *idpfake.FakeProvider
	store    *store.MemoryStore
	machine  *session.Machine
	gw       *gateway.Gateway
	api      *httptest.Server
	attempts atomic.Int64 // dispatches that reached the protected handler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		provider: idpfake.New(),
		store:    store.NewMemoryStore(),
	}
	f.provider.AddUser(users.User{
		ID:       1,
		Username: testUsername,
		Role:     users.RoleManager,
	}, testPassword)

	machine, err := session.NewMachine(f.provider, f.store)
	require.NoError(t, err)
	f.machine = machine

	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public":
			if r.Header.Get("Authorization") != "" {
				http.Error(w, "unexpected credential", http.StatusTeapot)
				return
			}
			w.WriteHeader(http.StatusOK)
			return

		case "/boom":
			http.Error(w, "internal error", http.StatusInternalServerError)
			return

		case "/reject":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"email":  []string{"Enter a valid email address."},
				"detail": "invalid payload",
			})
			return
		}

		// Everything else requires a live access credential.
		f.attempts.Add(1)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !f.provider.ValidAccess(token) {
			http.Error(w, "token invalid or expired", http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/always401" {
			http.Error(w, "token rejected", http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/forbidden" {
			http.Error(w, "permission denied", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	}))
	t.Cleanup(f.api.Close)

	gw, err := gateway.New(f.api.URL, machine)
	require.NoError(t, err)
	f.gw = gw

	return f
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.machine.Login(context.Background(), identity.Credentials{
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
}

func (f *testFixture) get(path string) (*gateway.Response, error) {
	return f.gw.Send(context.Background(), gateway.Request{Method: http.MethodGet, Path: path})
}

func TestSendAttachesCredential(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	resp, err := f.get("/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	var body map[string]string
	require.NoError(t, resp.Decode(&body))
	require.Equal(t, "/data", body["path"])
	require.EqualValues(t, 1, f.attempts.Load())
}

func TestSendWithoutSessionOmitsCredential(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.get("/public")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestExpiredCredentialIsRenewedAndReplayedOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.provider.InvalidateAccess()

	resp, err := f.get("/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	require.Equal(t, 1, f.provider.RenewCalls())
	require.EqualValues(t, 2, f.attempts.Load(), "original dispatch plus exactly one replay")
	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
}

func TestSecond401TearsSessionDown(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.get("/always401")
	require.ErrorIs(t, err, apierr.ErrUnauthorized)

	require.EqualValues(t, 2, f.attempts.Load(), "no third attempt after the replay fails")
	require.Equal(t, 1, f.provider.RenewCalls())
	require.Equal(t, session.StatusUnauthenticated, f.machine.Status())

	for _, k := range store.SessionKeys() {
		_, err := f.store.Get(context.Background(), k)
		require.ErrorIs(t, err, store.ErrAbsent, "key %q should be cleared", k)
	}
}

func TestRenewalFailureForcesLogoutWithoutReplay(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.provider.InvalidateAccess()
	f.provider.RenewErr = errors.New("renewal credential rotated away")

	_, err := f.get("/data")
	require.ErrorIs(t, err, apierr.ErrUnauthorized)

	require.EqualValues(t, 1, f.attempts.Load(), "no replay after a failed renewal")
	require.Equal(t, session.StatusUnauthenticated, f.machine.Status())
}

func TestUnauthenticatedProtectedCall(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.get("/data")
	require.ErrorIs(t, err, apierr.ErrUnauthorized)
	require.Equal(t, 0, f.provider.RenewCalls(), "no renewal exchange without a renewal credential")
}

func TestConcurrentFaultsShareOneRenewal(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.provider.RenewDelay = 150 * time.Millisecond
	f.provider.InvalidateAccess()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.get("/data")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.provider.RenewCalls(), "all concurrent faults must share one exchange")
	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
}

func TestConcurrentRenewalFailureTearsDownOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.provider.RenewDelay = 100 * time.Millisecond
	f.provider.RenewErr = errors.New("renewal credential invalid")
	f.provider.InvalidateAccess()

	events, cancel := f.machine.Subscribe()
	defer cancel()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.get("/data")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, apierr.ErrUnauthorized)
	}
	require.Equal(t, 1, f.provider.RenewCalls())
	require.Equal(t, session.StatusUnauthenticated, f.machine.Status())

	var teardowns int
	for {
		select {
		case tr := <-events:
			if tr.To == session.StatusUnauthenticated {
				teardowns++
			}
			continue
		default:
		}
		break
	}
	require.Equal(t, 1, teardowns, "the session transitions to unauthenticated exactly once")
}

func TestServerFailureLeavesSessionIntact(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.get("/boom")
	require.ErrorIs(t, err, apierr.ErrServerFailure)

	var se *apierr.ServerError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.Status)

	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
	require.Equal(t, 0, f.provider.RenewCalls())
}

func TestValidationRejectionIsPreservedVerbatim(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.get("/reject")
	require.ErrorIs(t, err, apierr.ErrValidationRejected)

	var rej *apierr.Rejection
	require.True(t, errors.As(err, &rej))
	require.Equal(t, http.StatusBadRequest, rej.Status)
	require.Equal(t, "invalid payload", rej.Detail)
	require.Equal(t, []string{"Enter a valid email address."}, rej.Fields["email"])

	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
}

func TestForbiddenIsNotAValidationRejection(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.get("/forbidden")
	require.ErrorIs(t, err, apierr.ErrForbidden)
	require.NotErrorIs(t, err, apierr.ErrValidationRejected)

	// A role denial is not an authorization fault: no renewal, no teardown.
	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
	require.Equal(t, 0, f.provider.RenewCalls())
}

func TestNetworkFailureLeavesSessionIntact(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	// A gateway pointed at a closed port fails in transport.
	deadGW, err := gateway.New("http://127.0.0.1:1", f.machine)
	require.NoError(t, err)

	_, err = deadGW.Send(context.Background(), gateway.Request{Method: http.MethodGet, Path: "/data"})
	require.ErrorIs(t, err, apierr.ErrNetworkFailure)
	require.Equal(t, session.StatusAuthenticated, f.machine.Status())
}
