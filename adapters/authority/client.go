// Package authority implements the HTTP client for the remote authority
// that verifies signed challenges and issues session credentials.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/ports"
)

// Config configures the authority client.
type Config struct {
	BaseURL  string
	ClientID string
	Timeout  time.Duration

	// Requests per second against the authority, with the given burst.
	// Zero values fall back to 5 rps / burst 10.
	RatePerSecond float64
	Burst         int
}

// Client is an HTTP implementation of the Authority port. Requests pass a
// token bucket so a misbehaving caller cannot hammer the authority.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an authority client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps == 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 10
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// errorEnvelope is the authority's error response shape.
type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Connect exchanges a signed challenge for a bearer token and user id.
func (c *Client) Connect(ctx context.Context, message, signature string) (*ports.ConnectResult, error) {
	body := map[string]string{
		"signature": signature,
		"message":   message,
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			JWT  string `json:"jwt"`
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}

	if err := c.do(ctx, http.MethodPost, "/auth/connect", "", body, &resp); err != nil {
		return nil, classifyConnectError(err)
	}
	if resp.Data.JWT == "" || resp.Data.User.ID == "" {
		return nil, core.NewError(core.KindAuthenticationFailed, "authority returned an incomplete session")
	}

	return &ports.ConnectResult{
		Token:  resp.Data.JWT,
		UserID: resp.Data.User.ID,
	}, nil
}

// Usage fetches point/multiplier/activity data for the token's user.
func (c *Client) Usage(ctx context.Context, token string) (*core.UsageSnapshot, error) {
	var resp struct {
		User struct {
			Points     decimal.Decimal `json:"points"`
			Multiplier decimal.Decimal `json:"multiplier"`
			Active     bool            `json:"active"`
		} `json:"user"`
	}

	if err := c.do(ctx, http.MethodGet, "/auth/usage", token, nil, &resp); err != nil {
		return nil, err
	}

	return &core.UsageSnapshot{
		Points:     resp.User.Points,
		Multiplier: resp.User.Multiplier,
		Active:     resp.User.Active,
	}, nil
}

// Connections returns the provider -> linked map of social identities.
func (c *Client) Connections(ctx context.Context, token string) (map[string]bool, error) {
	connections := make(map[string]bool)
	if err := c.do(ctx, http.MethodGet, "/auth/connections", token, nil, &connections); err != nil {
		return nil, err
	}
	return connections, nil
}

// RegisterAsset registers an asset and returns the authority's mint voucher.
func (c *Client) RegisterAsset(ctx context.Context, token string, submission *core.AssetSubmission) (*core.AssetRegistration, error) {
	registration := &core.AssetRegistration{}
	if err := c.do(ctx, http.MethodPost, "/auth/register", token, submission, registration); err != nil {
		return nil, err
	}
	return registration, nil
}

// LinkSocial links a social identity provider to the token's user.
func (c *Client) LinkSocial(ctx context.Context, token, provider string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/link/"+provider, token, nil, nil); err != nil {
		return core.SocialLinkingError(provider, err)
	}
	return nil
}

// UnlinkSocial removes a linked social identity provider.
func (c *Client) UnlinkSocial(ctx context.Context, token, provider string) error {
	if err := c.do(ctx, http.MethodDelete, "/auth/link/"+provider, token, nil, nil); err != nil {
		return core.SocialLinkingError(provider, err)
	}
	return nil
}

// do performs a rate-limited request and decodes the response into out.
// Non-2xx responses are returned as typed errors carrying the authority's
// error envelope message when one is present.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.WrapError(core.KindNetworkError, "request rate limiting interrupted", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-client-id", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.WrapError(core.KindNetworkError, "failed to reach the remote authority", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.WrapError(core.KindNetworkError, "failed to read authority response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelopeError(payload, resp.StatusCode)
	}

	// Successful responses may still carry an error envelope.
	var envelope errorEnvelope
	if json.Unmarshal(payload, &envelope) == nil && envelope.Status == "error" {
		return envelopeError(payload, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return core.WrapError(core.KindNetworkError, "failed to decode authority response", err)
		}
	}
	return nil
}

// envelopeError turns an authority error payload into a typed error.
func envelopeError(payload []byte, statusCode int) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Message == "" {
		return core.NewError(core.KindAuthenticationFailed, fmt.Sprintf("authority rejected the request with status %d", statusCode))
	}
	return core.NewError(core.KindAuthenticationFailed, envelope.Message)
}

// classifyConnectError upgrades token-exchange failures whose message
// indicates a stale challenge, so the authenticator can retry them.
func classifyConnectError(err error) error {
	var typed *core.Error
	if !errors.As(err, &typed) {
		return err
	}
	if typed.Kind == core.KindAuthenticationFailed && strings.Contains(strings.ToLower(typed.Message), "expired") {
		return core.NewError(core.KindChallengeExpired, typed.Message)
	}
	return err
}
