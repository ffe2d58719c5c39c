// Package idpfake provides an in-process identity.Provider for tests. It
// mints real (HS256-signed) access credentials so gateway tests exercise the
// same opaque-token handling as the production provider, and it counts
// renewal exchanges so single-flight behaviour can be asserted.
package idpfake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/athishulleri01/erp-session-core/apierr"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/users"
)

var _ identity.Provider = (*FakeProvider)(nil)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type account struct {
	user     users.User
	password string
}

// FakeProvider is an in-memory identity provider.
type FakeProvider struct {
	lock     sync.Mutex
	secret   []byte
	accounts map[string]account
	renewals map[string]string // renewal credential -> username
	access   map[string]string // access credential -> username

	renewCalls  int
	revokeCalls int

	// RenewErr, when set, makes every Renew call fail with it.
	RenewErr error
	// RevokeErr, when set, makes every Revoke call fail with it.
	RevokeErr error
	// RenewDelay widens the renewal window so tests can pile up concurrent
	// callers against one in-flight exchange.
	RenewDelay time.Duration

	// AccessTTL is the lifetime baked into minted access credentials.
	AccessTTL time.Duration
}

// New creates an empty fake provider.
func New() *FakeProvider {
	return &FakeProvider{
		secret:    []byte("idpfake-signing-secret"),
		accounts:  make(map[string]account),
		renewals:  make(map[string]string),
		access:    make(map[string]string),
		AccessTTL: 5 * time.Minute,
	}
}

// AddUser registers an account that Authenticate will accept.
func (f *FakeProvider) AddUser(u users.User, password string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[u.Username] = account{user: u, password: password}
}

// Authenticate checks the credentials and issues a fresh credential pair.
func (f *FakeProvider) Authenticate(_ context.Context, creds identity.Credentials) (*identity.Grant, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	acct, ok := f.accounts[creds.Username]
	if !ok || acct.password != creds.Password {
		return nil, &apierr.Rejection{
			Status: 401,
			Detail: "No active account found with the given credentials",
		}
	}

	access, err := f.mintAccess(creds.Username)
	if err != nil {
		return nil, err
	}
	renewal := randomToken()
	f.renewals[renewal] = creds.Username

	return &identity.Grant{
		Access:  access,
		Renewal: renewal,
		User:    acct.user,
	}, nil
}

// Register creates an account and returns the stored user record.
func (f *FakeProvider) Register(_ context.Context, reg identity.Registration) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if _, exists := f.accounts[reg.Username]; exists {
		return nil, &apierr.Rejection{
			Status: 400,
			Fields: map[string][]string{"username": {"A user with that username already exists."}},
		}
	}

	u := users.User{
		ID:         int64(len(f.accounts) + 1),
		Username:   reg.Username,
		Email:      reg.Email,
		FirstName:  reg.FirstName,
		LastName:   reg.LastName,
		Phone:      reg.Phone,
		Department: reg.Department,
		Role:       users.RoleEmployee,
		DateJoined: NowTimeFunc(),
	}
	f.accounts[reg.Username] = account{user: u, password: reg.Password}
	return &u, nil
}

// Renew exchanges a renewal credential for a new access credential.
func (f *FakeProvider) Renew(_ context.Context, renewal string) (string, error) {
	f.lock.Lock()
	f.renewCalls++
	delay := f.RenewDelay
	renewErr := f.RenewErr
	username, known := f.renewals[renewal]
	f.lock.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if renewErr != nil {
		return "", renewErr
	}
	if !known {
		return "", errors.Wrap(apierr.ErrUnauthorized, "renewal credential rejected")
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.mintAccess(username)
}

// Revoke invalidates a renewal credential.
func (f *FakeProvider) Revoke(_ context.Context, renewal string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.revokeCalls++
	if f.RevokeErr != nil {
		return f.RevokeErr
	}
	delete(f.renewals, renewal)
	return nil
}

// RenewCalls reports how many renewal exchanges reached the provider.
func (f *FakeProvider) RenewCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.renewCalls
}

// RevokeCalls reports how many revocations reached the provider.
func (f *FakeProvider) RevokeCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.revokeCalls
}

// ValidAccess reports whether the access credential was minted here and is
// still honoured. API test doubles use it to act as the resource server.
func (f *FakeProvider) ValidAccess(token string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.access[token]
	return ok
}

// InvalidateAccess forgets every outstanding access credential, simulating
// server-side expiry.
func (f *FakeProvider) InvalidateAccess() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.access = make(map[string]string)
}

// mintAccess signs a short-lived HS256 token. Callers hold the lock.
func (f *FakeProvider) mintAccess(username string) (string, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(f.AccessTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", errors.Wrap(err, "mint access credential")
	}
	f.access[token] = username
	return token, nil
}

func randomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(b)
}
