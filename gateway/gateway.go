// Package gateway wraps every outbound call to the ERP backend: it attaches
// the session's access credential, classifies failures into the apierr
// taxonomy, and on an authorization failure runs one shared renewal exchange
// and replays the call at most once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/athishulleri01/erp-session-core/apierr"
	"github.com/athishulleri01/erp-session-core/session"
)

const defaultTimeout = 30 * time.Second

// Session is the view of the session state machine the gateway needs. The
// gateway only ever borrows the credential; it never mutates session state
// directly.
type Session interface {
	Status() session.Status
	AccessCredential() (string, bool)
	Renew(ctx context.Context) (string, error)
	ForceLogout(ctx context.Context)
}

// Request describes an outbound API call.
type Request struct {
	Method string
	Path   string // relative to the gateway's base URL
	Query  url.Values
	Body   any // JSON-marshalled when non-nil
}

// Response is a successful (2xx) API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "[Response.Decode]")
}

// Gateway dispatches authenticated requests against the API base URL.
type Gateway struct {
	baseURL string
	client  *http.Client
	session Session
	log     zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithLogger sets the gateway's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// New creates a Gateway for the given base URL and session.
func New(baseURL string, sess Session, options ...Option) (*Gateway, error) {
	if baseURL == "" {
		return nil, errors.New("[gateway.New] baseURL is required")
	}
	if sess == nil {
		return nil, errors.New("[gateway.New] session is required")
	}

	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		session: sess,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Send dispatches the request with the current access credential attached.
//
// On a 401 it runs the renewal protocol (joining an in-flight round if one
// exists) and redispatches the original request exactly once with the new
// credential; the redispatch outcome is returned as-is, except that a second
// 401 tears the session down. A failed renewal also tears the session down
// and surfaces apierr.ErrUnauthorized without a redispatch. No request is
// ever retried more than once for an authorization failure.
func (g *Gateway) Send(ctx context.Context, req Request) (*Response, error) {
	payload, err := marshalBody(req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.Send]")
	}
	requestID := uuid.New().String()

	resp, err := g.dispatch(ctx, req, payload, requestID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return g.classify(resp, err, req, requestID)
	}
	drain(resp)

	// Authorization failure: renew once, shared with any concurrent fault.
	if _, err := g.session.Renew(ctx); err != nil {
		g.log.Warn().Str("request_id", requestID).Err(err).Msg("credential renewal failed, tearing session down")
		g.session.ForceLogout(ctx)
		return nil, errors.Wrapf(apierr.ErrUnauthorized, "%s %s: renewal failed", req.Method, req.Path)
	}

	g.log.Debug().Str("request_id", requestID).Str("path", req.Path).Msg("redispatching after renewal")
	resp, err = g.dispatch(ctx, req, payload, requestID)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		// The renewed credential was rejected too. One redispatch is the
		// cap; give up on the session.
		drain(resp)
		g.session.ForceLogout(ctx)
		return nil, errors.Wrapf(apierr.ErrUnauthorized, "%s %s: rejected after renewal", req.Method, req.Path)
	}
	return g.classify(resp, err, req, requestID)
}

// dispatch performs one HTTP round trip with the current credential.
func (g *Gateway) dispatch(ctx context.Context, req Request, payload []byte, requestID string) (*http.Response, error) {
	target := g.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	if g.session.Status() != session.StatusUnauthenticated {
		if access, ok := g.session.AccessCredential(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}

	return g.client.Do(httpReq)
}

// classify converts a round-trip outcome into a Response or an apierr error.
// Responses other than 2xx are fully consumed here.
func (g *Gateway) classify(resp *http.Response, err error, req Request, requestID string) (*Response, error) {
	if err != nil {
		g.log.Warn().Str("request_id", requestID).Str("path", req.Path).Err(err).Msg("request failed in transport")
		return nil, errors.Wrapf(apierr.ErrNetworkFailure, "%s %s: %v", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body := new(bytes.Buffer)
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, errors.Wrapf(apierr.ErrNetworkFailure, "%s %s: read body: %v", req.Method, req.Path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body.Bytes()}, nil

	case resp.StatusCode == http.StatusForbidden:
		// The credential was honoured but the role was not. This is a
		// server-side RBAC denial, not a payload rejection.
		g.log.Debug().Str("request_id", requestID).Str("path", req.Path).Msg("request forbidden for role")
		return nil, errors.Wrapf(apierr.ErrForbidden, "%s %s", req.Method, req.Path)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		rej := parseRejection(resp.StatusCode, body.Bytes())
		g.log.Debug().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("request rejected by provider")
		return nil, rej

	default:
		g.log.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Str("path", req.Path).Msg("server failure")
		return nil, &apierr.ServerError{Status: resp.StatusCode, Body: body.Bytes()}
	}
}

// parseRejection lifts a 4xx body into an apierr.Rejection, keeping the
// provider's text verbatim.
func parseRejection(status int, body []byte) *apierr.Rejection {
	rej := &apierr.Rejection{Status: status, Fields: map[string][]string{}}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return rej
	}
	for key, val := range decoded {
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
				if s, ok := item.(string); ok {
					msgs = append(msgs, s)
				}
			}
			rej.Fields[key] = msgs
		}
	}
	return rej
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal body")
	}
	return payload, nil
}

func drain(resp *http.Response) {
	if resp == nil {
		return
	}
	resp.Body.Close()
}
