// Package orgapi is the HTTP client for the organization service endpoints
// the session core depends on: listing the caller's organizations, resolving
// a membership, and recording the current organization server-side.
package orgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is the collaborator surface the session store consumes.
type Client interface {
	// ListUserOrganizations returns every organization the caller belongs
	// to, in the order the server lists them.
	ListUserOrganizations(ctx context.Context) ([]Organization, error)
	// GetMembership resolves the caller's role and permissions within one
	// organization.
	GetMembership(ctx context.Context, orgID string) (Membership, error)
	// SetCurrentOrganization records orgID as the caller's current
	// organization server-side. A nil return confirms the switch.
	SetCurrentOrganization(ctx context.Context, orgID string) error
}

const defaultTimeout = 10 * time.Second

// HTTPClient talks to the organization service over HTTP with a bearer token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *HTTPClient) { c.log = log }
}

// NewHTTPClient creates a client for the organization service at baseURL,
// authenticating with the given bearer token.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after a switch issues a new one.
func (c *HTTPClient) SetToken(token string) { c.token = token }

type organizationsEnvelope struct {
	Success       bool           `json:"success"`
	Organizations []Organization `json:"organizations"`
	Error         string         `json:"error,omitempty"`
}

type membershipEnvelope struct {
	Success     bool     `json:"success"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type statusEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (c *HTTPClient) ListUserOrganizations(ctx context.Context) ([]Organization, error) {
	const op = "list_organizations"
	var env organizationsEnvelope
	if err := c.do(ctx, op, http.MethodGet, "/api/organizations", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &FetchError{Op: op, StatusCode: http.StatusOK, Message: env.Error}
	}
	return env.Organizations, nil
}

func (c *HTTPClient) GetMembership(ctx context.Context, orgID string) (Membership, error) {
	const op = "get_membership"
	var env membershipEnvelope
	path := fmt.Sprintf("/api/organizations/%s/membership", orgID)
	if err := c.do(ctx, op, http.MethodGet, path, nil, &env); err != nil {
		return Membership{}, err
	}
	if !env.Success {
		return Membership{}, &FetchError{Op: op, StatusCode: http.StatusOK, Message: env.Error}
	}
	return Membership{Role: env.Role, Permissions: env.Permissions}, nil
}

func (c *HTTPClient) SetCurrentOrganization(ctx context.Context, orgID string) error {
	const op = "set_current_organization"
	body := map[string]string{"organization_id": orgID}
	var env statusEnvelope
	if err := c.do(ctx, op, http.MethodPut, "/api/organizations/current", body, &env); err != nil {
		return err
	}
	if !env.Success {
		return &FetchError{Op: op, StatusCode: http.StatusOK, Message: env.Error}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &FetchError{Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("organization service request failed",
			zap.String("op", op), zap.Error(err))
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{Op: op, StatusCode: resp.StatusCode}
		var env statusEnvelope
		if json.Unmarshal(raw, &env) == nil {
			fe.Message = env.Error
		}
		c.log.Warn("organization service returned error status",
			zap.String("op", op), zap.Int("status", resp.StatusCode))
		return fe
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
