// Package client wires the session core together: persisted store, identity
// provider, session state machine, request gateway, RBAC guard, and the
// directory client, all constructed from one configuration.
package client

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/athishulleri01/erp-session-core/directory"
	"github.com/athishulleri01/erp-session-core/gateway"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/identity/httpidp"
	"github.com/athishulleri01/erp-session-core/internal/config"
	"github.com/athishulleri01/erp-session-core/rbac"
	"github.com/athishulleri01/erp-session-core/session"
	"github.com/athishulleri01/erp-session-core/store"
	"github.com/athishulleri01/erp-session-core/users"
)

// Client is the assembled session core.
type Client struct {
	log       zerolog.Logger
	store     store.Store
	provider  identity.Provider
	machine   *session.Machine
	gateway   *gateway.Gateway
	directory *directory.Directory
	redis     *redis.Client
}

// Option overrides a constructed dependency, primarily for tests.
type Option func(*Client)

// WithProvider replaces the HTTP identity provider.
func WithProvider(p identity.Provider) Option {
	return func(c *Client) { c.provider = p }
}

// WithStore replaces the configured store backend.
func WithStore(s store.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithLogger replaces the configured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New assembles a Client from the configuration. It performs no network
// I/O; call Restore to pick up a persisted session.
func New(cfg *config.Config, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[client.New] config is required")
	}
	if err := config.Verify(cfg); err != nil {
		return nil, errors.Wrap(err, "[client.New]")
	}

	c := &Client{log: newLogger(cfg.Log.Level)}
	for _, opt := range options {
		opt(c)
	}

	if c.store == nil {
		st, rdb, err := buildStore(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "[client.New]")
		}
		c.store = st
		c.redis = rdb
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.API.Timeout)}

	if c.provider == nil {
		p, err := httpidp.New(cfg.API.BaseURL,
			httpidp.WithHTTPClient(httpClient),
			httpidp.WithLogger(c.log.With().Str("component", "identity").Logger()),
		)
		if err != nil {
			return nil, errors.Wrap(err, "[client.New]")
		}
		c.provider = p
	}

	machine, err := session.NewMachine(c.provider, c.store,
		session.WithLogger(c.log.With().Str("component", "session").Logger()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New]")
	}
	c.machine = machine

	gw, err := gateway.New(cfg.API.BaseURL, machine,
		gateway.WithHTTPClient(httpClient),
		gateway.WithLogger(c.log.With().Str("component", "gateway").Logger()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New]")
	}
	c.gateway = gw

	dir, err := directory.New(gw, machine)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New]")
	}
	c.directory = dir

	return c, nil
}

func buildStore(cfg *config.Config) (store.Store, *redis.Client, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil, nil

	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		rs, err := store.NewRedisStore(rdb, cfg.Store.Redis.Prefix)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return rs, rdb, nil

	default:
		return nil, nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
}

// Restore picks up a persisted session from the store, if one exists.
func (c *Client) Restore(ctx context.Context) error {
	return c.machine.Restore(ctx)
}

// Login authenticates and establishes the session.
func (c *Client) Login(ctx context.Context, creds identity.Credentials) (users.User, error) {
	return c.machine.Login(ctx, creds)
}

// Logout revokes the renewal credential (best-effort) and clears the
// session.
func (c *Client) Logout(ctx context.Context) {
	c.machine.Logout(ctx)
}

// Register submits a sign-up payload. It does not establish a session; the
// caller logs in afterwards.
func (c *Client) Register(ctx context.Context, reg identity.Registration) (*users.User, error) {
	u, err := c.provider.Register(ctx, reg)
	return u, errors.Wrap(err, "[Client.Register]")
}

// Status returns the current session status.
func (c *Client) Status() session.Status {
	return c.machine.Status()
}

// Principal returns a copy of the session principal, if one is held.
func (c *Client) Principal() (users.User, bool) {
	return c.machine.Principal()
}

// Subscribe registers for session transition events.
func (c *Client) Subscribe() (<-chan session.Transition, func()) {
	return c.machine.Subscribe()
}

// Can reports whether the current principal's role permits the action.
func (c *Client) Can(action rbac.Action) bool {
	return rbac.Can(c.machine.Role(), action)
}

// CanNavigate reports whether the current principal's role permits the
// route.
func (c *Client) CanNavigate(route rbac.Route) bool {
	return rbac.CanNavigate(c.machine.Role(), route)
}

// Directory returns the typed directory client.
func (c *Client) Directory() *directory.Directory {
	return c.directory
}

// Gateway returns the request gateway for callers that need endpoints the
// typed clients do not cover.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}

// Close releases any store connections the client opened.
func (c *Client) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
