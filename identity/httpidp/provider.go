// Package httpidp implements the identity.Provider contract over the ERP
// backend's HTTP identity endpoints.
package httpidp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/athishulleri01/erp-session-core/apierr"
	"github.com/athishulleri01/erp-session-core/identity"
	"github.com/athishulleri01/erp-session-core/users"
)

// Identity endpoints relative to the API base URL. These take no bearer
// credential; the renewal endpoint authenticates with the renewal credential
// in the body.
const (
	RouteLogin    = "/auth/login/"
	RouteRegister = "/auth/register/"
	RouteLogout   = "/auth/logout/"
	RouteRenew    = "/token/refresh/"
)

const defaultTimeout = 15 * time.Second

var _ identity.Provider = (*Provider)(nil)

// Provider talks to the identity endpoints of the ERP backend.
type Provider struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the underlying HTTP client (primarily for testing and
// for sharing transports with the request gateway).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// New creates a Provider for the given API base URL.
func New(baseURL string, options ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("[httpidp.New] baseURL is required")
	}
	p := &Provider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Authenticate exchanges login credentials for a credential pair and the
// session principal.
func (p *Provider) Authenticate(ctx context.Context, creds identity.Credentials) (*identity.Grant, error) {
	var grant identity.Grant
	if err := p.post(ctx, RouteLogin, creds, &grant); err != nil {
		return nil, errors.Wrap(err, "[Provider.Authenticate]")
	}
	if grant.Access == "" || grant.Renewal == "" {
		return nil, errors.New("[Provider.Authenticate] provider returned incomplete credential pair")
	}
	return &grant, nil
}

// Register submits a sign-up payload and returns the created user record.
func (p *Provider) Register(ctx context.Context, reg identity.Registration) (*users.User, error) {
	var user users.User
	if err := p.post(ctx, RouteRegister, reg, &user); err != nil {
		return nil, errors.Wrap(err, "[Provider.Register]")
	}
	return &user, nil
}

// Renew exchanges the renewal credential for a fresh access credential. Any
// provider-side rejection of the renewal credential maps to ErrUnauthorized.
func (p *Provider) Renew(ctx context.Context, renewal string) (string, error) {
	body := map[string]string{"refresh": renewal}
	var out struct {
		Access string `json:"access"`
	}
	if err := p.post(ctx, RouteRenew, body, &out); err != nil {
		if errors.Is(err, apierr.ErrValidationRejected) {
			// The renewal credential itself was refused.
			return "", errors.Wrap(apierr.ErrUnauthorized, "[Provider.Renew] renewal credential rejected")
		}
		return "", errors.Wrap(err, "[Provider.Renew]")
	}
	if out.Access == "" {
		return "", errors.New("[Provider.Renew] provider returned empty access credential")
	}
	return out.Access, nil
}

// Revoke invalidates the renewal credential server-side. Callers treat
// failures as non-fatal.
func (p *Provider) Revoke(ctx context.Context, renewal string) error {
	body := map[string]string{"refresh": renewal}
	if err := p.post(ctx, RouteLogout, body, nil); err != nil {
		return errors.Wrap(err, "[Provider.Revoke]")
	}
	return nil
}

// post sends a JSON POST and decodes a 2xx response into out (when out is
// non-nil). Failures are classified into the apierr taxonomy.
func (p *Provider) post(ctx context.Context, route string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn().Str("route", route).Str("request_id", requestID).Err(err).Msg("identity call failed")
		return errors.Wrapf(apierr.ErrNetworkFailure, "%s: %v", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
		return nil
	}

	p.log.Debug().Str("route", route).Str("request_id", requestID).Int("status", resp.StatusCode).Msg("identity call rejected")

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return ParseRejection(resp)
	}
	return &apierr.ServerError{Status: resp.StatusCode}
}

// ParseRejection converts a 4xx provider response into an apierr.Rejection,
// preserving the provider's rejection text verbatim for display.
func ParseRejection(resp *http.Response) *apierr.Rejection {
	rej := &apierr.Rejection{
		Status: resp.StatusCode,
		Fields: map[string][]string{},
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return rej
	}

	for key, val := range body {
		switch v := val.(type) {
		case string:
			if key == "detail" {
				rej.Detail = v
			} else {
				rej.Fields[key] = []string{v}
			}
		case []any:
			var msgs []string
			for _, item := range v {
				msgs = append(msgs, fmt.Sprint(item))
			}
			rej.Fields[key] = msgs
		}
	}
	return rej
}
