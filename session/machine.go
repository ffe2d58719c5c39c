package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/store"
	"github.com/athishulleri01/erp-session-core/users"
)

const defaultRevokeTimeout = 5 * time.Second

// Machine is the session state machine. All mutation of the credential pair
// and principal goes through it; the store is written before the in-memory
// state becomes authoritative, so the store is the source of truth for
// restoring a session after a restart.
type Machine struct {
	provider      identity.Provider
	store         store.Store
	log           zerolog.Logger
	revokeTimeout time.Duration

	lock      sync.RWMutex
	status    Status
	access    string
	renewal   string
	principal *users.User

	subLock sync.Mutex
	subs    map[int]chan Transition
	nextSub int

	renewLock sync.Mutex
	round     *renewRound
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithRevokeTimeout bounds the best-effort revocation call during logout.
func WithRevokeTimeout(d time.Duration) Option {
	return func(m *Machine) { m.revokeTimeout = d }
}

// NewMachine creates a Machine over the given provider and store.
func NewMachine(provider identity.Provider, st store.Store, options ...Option) (*Machine, error) {
	if provider == nil {
		return nil, errors.New("[NewMachine] provider is required")
	}
	if st == nil {
		return nil, errors.New("[NewMachine] store is required")
	}

	m := &Machine{
		provider:      provider,
		store:         st,
		log:           zerolog.Nop(),
		revokeTimeout: defaultRevokeTimeout,
		status:        StatusUnauthenticated,
		subs:          make(map[int]chan Transition),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Status returns the current session status.
func (m *Machine) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.status
}

// Principal returns a copy of the session principal, if one is held.
func (m *Machine) Principal() (users.User, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.principal == nil {
		return users.User{}, false
	}
	return *m.principal, true
}

// Role returns the current principal's role, or the empty role when no
// principal is held.
func (m *Machine) Role() users.RoleType {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.principal == nil {
		return ""
	}
	return m.principal.Role
}

// AccessCredential returns the current access credential for attaching to an
// outbound request. The caller must treat it as a read-only borrow.
func (m *Machine) AccessCredential() (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.status != StatusAuthenticated || m.access == "" {
		return "", false
	}
	return m.access, true
}

// Restore initialises the machine from the persisted store. When all three
// slots are present the session becomes authenticated without contacting the
// network; the first subsequent request proves or disproves validity. Any
// missing slot leaves the machine unauthenticated.
func (m *Machine) Restore(ctx context.Context) error {
	access, errA := m.store.Get(ctx, store.KeyAccessCredential)
	renewal, errR := m.store.Get(ctx, store.KeyRenewalCredential)
	rawUser, errU := m.store.Get(ctx, store.KeyPrincipal)

	for _, err := range []error{errA, errR, errU} {
		if err != nil && !errors.Is(err, store.ErrAbsent) {
			return errors.Wrap(err, "[Machine.Restore] store read")
		}
	}
	if errA != nil || errR != nil || errU != nil {
		m.log.Debug().Msg("no stored session to restore")
		return nil
	}

	var principal users.User
	if err := json.Unmarshal([]byte(rawUser), &principal); err != nil {
		// A corrupt principal slot is treated the same as an absent one.
		m.log.Warn().Err(err).Msg("stored principal is corrupt, discarding session")
		if clearErr := m.store.Clear(ctx, store.SessionKeys()...); clearErr != nil {
			m.log.Warn().Err(clearErr).Msg("failed clearing corrupt session")
		}
		return nil
	}

	m.lock.Lock()
	old := m.status
	m.access = access
	m.renewal = renewal
	m.principal = &principal
	m.status = StatusAuthenticated
	m.lock.Unlock()

	m.emit(Transition{From: old, To: StatusAuthenticated})
	m.log.Info().Str("username", principal.Username).Msg("session restored from store")
	return nil
}

// Login exchanges credentials with the identity provider and, on success,
// installs the credential pair and principal atomically. Login is idempotent
// under caller retry: repeating the call with the same credentials lands in
// the same terminal state. A rejected login always lands in a fully empty
// session, even when a previous session was established before the call.
func (m *Machine) Login(ctx context.Context, creds identity.Credentials) (users.User, error) {
	m.setStatus(StatusAuthenticating)

	grant, err := m.provider.Authenticate(ctx, creds)
	if err != nil {
		m.teardown(ctx, StatusUnauthenticated)
		return users.User{}, errors.Wrap(err, "[Machine.Login]")
	}

	if err := m.install(ctx, grant); err != nil {
		m.teardown(ctx, StatusUnauthenticated)
		return users.User{}, errors.Wrap(err, "[Machine.Login]")
	}

	m.log.Info().Str("username", grant.User.Username).Str("role", string(grant.User.Role)).Msg("login succeeded")
	return grant.User, nil
}

// install persists a grant and then publishes it to memory. The store write
// happens first: a crash in between is recovered as "not logged in" on the
// next restart rather than as a half-written session.
func (m *Machine) install(ctx context.Context, grant *identity.Grant) error {
	rawUser, err := json.Marshal(grant.User)
	if err != nil {
		return errors.Wrap(err, "marshal principal")
	}

	writes := map[string]string{
		store.KeyAccessCredential:  grant.Access,
		store.KeyRenewalCredential: grant.Renewal,
		store.KeyPrincipal:         string(rawUser),
	}
	for key, value := range writes {
		if err := m.store.Set(ctx, key, value); err != nil {
			if clearErr := m.store.Clear(ctx, store.SessionKeys()...); clearErr != nil {
				m.log.Warn().Err(clearErr).Msg("failed clearing partial session write")
			}
			return errors.Wrapf(err, "persist %s", key)
		}
	}

	principal := grant.User
	m.lock.Lock()
	old := m.status
	m.access = grant.Access
	m.renewal = grant.Renewal
	m.principal = &principal
	m.status = StatusAuthenticated
	m.lock.Unlock()

	m.emit(Transition{From: old, To: StatusAuthenticated})
	return nil
}

// UpdatePrincipal replaces the stored principal after a successful profile
// fetch or self-edit. The credential pair is untouched.
func (m *Machine) UpdatePrincipal(ctx context.Context, u users.User) error {
	rawUser, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "[Machine.UpdatePrincipal] marshal")
	}

	m.lock.Lock()
	if m.status != StatusAuthenticated {
		m.lock.Unlock()
		return errors.New("[Machine.UpdatePrincipal] not authenticated")
	}
	m.lock.Unlock()

	if err := m.store.Set(ctx, store.KeyPrincipal, string(rawUser)); err != nil {
		return errors.Wrap(err, "[Machine.UpdatePrincipal] persist")
	}

	m.lock.Lock()
	if m.status == StatusAuthenticated {
		m.principal = &u
	}
	m.lock.Unlock()
	return nil
}

// Logout tears the session down. Server-side revocation of the renewal
// credential is attempted first and is best-effort; local state is cleared
// unconditionally, so logout never fails from the caller's perspective.
func (m *Machine) Logout(ctx context.Context) {
	m.lock.RLock()
	renewal := m.renewal
	m.lock.RUnlock()

	if renewal != "" {
		revokeCtx, cancel := context.WithTimeout(ctx, m.revokeTimeout)
		if err := m.provider.Revoke(revokeCtx, renewal); err != nil {
			m.log.Warn().Err(err).Msg("renewal credential revocation failed, clearing local session anyway")
		}
		cancel()
	}

	m.teardown(ctx, StatusLoggedOut)
	m.setStatus(StatusUnauthenticated)
	m.log.Info().Msg("logged out")
}

// ForceLogout clears the session after an unrecoverable authorization
// failure. It is idempotent: concurrent callers produce at most one
// transition and one store clear.
func (m *Machine) ForceLogout(ctx context.Context) {
	m.lock.Lock()
	if m.status == StatusUnauthenticated {
		m.lock.Unlock()
		return
	}
	old := m.status
	m.access = ""
	m.renewal = ""
	m.principal = nil
	m.status = StatusUnauthenticated
	m.lock.Unlock()

	if err := m.store.Clear(ctx, store.SessionKeys()...); err != nil {
		m.log.Warn().Err(err).Msg("failed clearing session store during forced logout")
	}
	m.emit(Transition{From: old, To: StatusUnauthenticated})
	m.log.Warn().Msg("session torn down after authorization failure")
}

// teardown clears local state and moves to the given status, emitting one
// transition when the status actually changes.
func (m *Machine) teardown(ctx context.Context, to Status) {
	m.lock.Lock()
	old := m.status
	m.access = ""
	m.renewal = ""
	m.principal = nil
	m.status = to
	m.lock.Unlock()

	if err := m.store.Clear(ctx, store.SessionKeys()...); err != nil {
		m.log.Warn().Err(err).Msg("failed clearing session store")
	}
	if old != to {
		m.emit(Transition{From: old, To: to})
	}
}

// setStatus moves to the given status without touching credentials or
// principal, emitting one transition when the status actually changes.
func (m *Machine) setStatus(to Status) {
	m.lock.Lock()
	old := m.status
	if old == to {
		m.lock.Unlock()
		return
	}
	m.status = to
	m.lock.Unlock()
	m.emit(Transition{From: old, To: to})
}
