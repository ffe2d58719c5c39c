package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/athishulleri01/erp-session-core/apierr"
	"github.com/athishulleri01/erp-session-core/store"
)

// renewRound is one single-flight renewal exchange. The leader fills access
// and err, then closes done; every follower that joined the round reads the
// shared outcome.
type renewRound struct {
	done   chan struct{}
	access string
	err    error
}

// Renew exchanges the renewal credential for a fresh access credential.
//
// It is safe to call concurrently: the first caller while no exchange is
// outstanding becomes the leader and performs the network exchange; every
// other caller joins the in-flight round and receives the leader's outcome
// without issuing its own exchange. A failed round is terminal for all of
// its waiters; the next Renew call starts a new round.
//
// A follower whose context is cancelled abandons the round without
// disturbing it; the leader's exchange is detached from the triggering
// caller's context so one abandoned request cannot fail the round for
// everyone else.
func (m *Machine) Renew(ctx context.Context) (string, error) {
	m.renewLock.Lock()
	if r := m.round; r != nil {
		m.renewLock.Unlock()
		select {
		case <-r.done:
			return r.access, r.err
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "[Machine.Renew] abandoned while awaiting in-flight renewal")
		}
	}

	r := &renewRound{done: make(chan struct{})}
	m.round = r
	m.renewLock.Unlock()

	r.access, r.err = m.renewExchange(context.WithoutCancel(ctx))

	m.renewLock.Lock()
	m.round = nil
	m.renewLock.Unlock()
	close(r.done)

	return r.access, r.err
}

// renewExchange performs the actual credential exchange and synchronizes
// store and memory. The store is written before the in-memory credential is
// replaced.
func (m *Machine) renewExchange(ctx context.Context) (string, error) {
	m.lock.RLock()
	renewal := m.renewal
	m.lock.RUnlock()

	if renewal == "" {
		return "", errors.Wrap(apierr.ErrRenewalUnavailable, "[Machine.Renew]")
	}

	access, err := m.provider.Renew(ctx, renewal)
	if err != nil {
		return "", errors.Wrap(err, "[Machine.Renew] exchange")
	}

	// The session may have been torn down while the exchange was in flight;
	// do not resurrect a cleared credential pair in memory or in the store.
	// Holding the lock across the persist keeps a concurrent teardown from
	// interleaving between the store write and the install.
	m.lock.Lock()
	if m.renewal != renewal {
		m.lock.Unlock()
		return "", errors.Wrap(apierr.ErrUnauthorized, "[Machine.Renew] session ended during exchange")
	}
	if err := m.store.Set(ctx, store.KeyAccessCredential, access); err != nil {
		m.lock.Unlock()
		return "", errors.Wrap(err, "[Machine.Renew] persist access credential")
	}
	m.access = access
	m.lock.Unlock()

	m.log.Debug().Msg("access credential renewed")
	return access, nil
}
