// Package authhttp implements a session backend over an HTTP/JSON
// authentication API.
//
// The client keeps the session it last handed out and revalidates or
// rotates it against three endpoints: GET /user checks an access
// token, PUT /session registers an adopted session, and POST
// /token?grant_type=refresh_token trades a refresh token for fresh
// credentials.
package authhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/session"
)

const defaultTimeout = 30 * time.Second

// Config carries the settings for an auth API client.
type Config struct {
	// BaseURL is the root of the auth API, without a trailing slash.
	// Required.
	BaseURL string

	// APIKey is sent in the apikey header on every request. Optional.
	APIKey string

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client

	// Logger receives rotation and failure events. Optional.
	Logger *zap.Logger
}

// Client talks to the auth API and holds the most recent session it
// produced. It implements [session.Backend].
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger

	mu   sync.Mutex
	held *session.Record

	nowFunc func() time.Time // for testing; defaults to time.Now
}

// New builds a client for the auth API at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("authhttp: BaseURL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}, nil
}

var _ session.Backend = (*Client)(nil)

// Current reports the session the client holds, revalidated against
// the service. A nil record with a nil error means no session is held.
// An access token past its expiry is rotated through the refresh grant
// instead of being sent to /user.
func (c *Client) Current(ctx context.Context) (*session.Record, error) {
	c.mu.Lock()
	held := c.held
	c.mu.Unlock()
	if held == nil {
		return nil, nil
	}
	if c.expired(held.ExpiresAt) {
		if held.RefreshToken == "" {
			c.forget()
			return nil, fmt.Errorf("authhttp: current: access token expired and no refresh token: %w", session.ErrInvalidToken)
		}
		return c.refresh(ctx, held.RefreshToken)
	}
	user, err := c.fetchUser(ctx, held.AccessToken)
	if err != nil {
		err = classify(err)
		if session.IsInvalidToken(err) && held.RefreshToken != "" {
			return c.refresh(ctx, held.RefreshToken)
		}
		return nil, err
	}
	cur := *held
	cur.User = session.User{ID: user.ID, Email: user.Email}
	return c.hold(&cur), nil
}

// Adopt registers a recovered session with the service, which may
// rotate its tokens. An already expired access token goes straight to
// the refresh grant.
func (c *Client) Adopt(ctx context.Context, r *session.Record) (*session.Record, error) {
	if r == nil || r.AccessToken == "" {
		return nil, fmt.Errorf("authhttp: adopt: empty session: %w", session.ErrInvalidToken)
	}
	expiresAt := r.ExpiresAt
	if expiresAt == 0 {
		expiresAt = tokenExpiry(r.AccessToken)
	}
	if c.expired(expiresAt) {
		if r.RefreshToken == "" {
			return nil, fmt.Errorf("authhttp: adopt: access token expired and no refresh token: %w", session.ErrInvalidToken)
		}
		return c.refresh(ctx, r.RefreshToken)
	}

	body := map[string]string{
		"access_token":  r.AccessToken,
		"refresh_token": r.RefreshToken,
	}
	var tp tokenPayload
	if err := c.do(ctx, http.MethodPut, "/session", r.AccessToken, body, &tp); err != nil {
		err = classify(err)
		if session.IsInvalidToken(err) && r.RefreshToken != "" {
			return c.refresh(ctx, r.RefreshToken)
		}
		return nil, err
	}
	return c.accept(&tp)
}

// Refresh rotates the held session's tokens through the refresh grant.
func (c *Client) Refresh(ctx context.Context) (*session.Record, error) {
	c.mu.Lock()
	held := c.held
	c.mu.Unlock()
	if held == nil || held.RefreshToken == "" {
		return nil, fmt.Errorf("authhttp: refresh: no refresh token held: %w", session.ErrInvalidToken)
	}
	return c.refresh(ctx, held.RefreshToken)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*session.Record, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tp tokenPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tp); err != nil {
		err = classify(err)
		if session.IsInvalidToken(err) {
			// The refresh token is dead; the held session is useless now.
			c.forget()
		}
		return nil, err
	}
	return c.accept(&tp)
}

func (c *Client) fetchUser(ctx context.Context, accessToken string) (*userPayload, error) {
	var u userPayload
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("authhttp: user response missing id: %w", session.ErrInvalidToken)
	}
	return &u, nil
}

// accept turns a token payload into a held session record.
func (c *Client) accept(tp *tokenPayload) (*session.Record, error) {
	if tp.AccessToken == "" {
		return nil, fmt.Errorf("authhttp: token response missing access token: %w", session.ErrInvalidToken)
	}
	if tp.User == nil || tp.User.ID == "" {
		return nil, fmt.Errorf("authhttp: token response missing user: %w", session.ErrInvalidToken)
	}
	r := &session.Record{
		AccessToken:  tp.AccessToken,
		RefreshToken: tp.RefreshToken,
		ExpiresAt:    tp.ExpiresAt,
		User:         session.User{ID: tp.User.ID, Email: tp.User.Email},
	}
	if r.ExpiresAt == 0 && tp.ExpiresIn > 0 {
		r.ExpiresAt = c.now().Add(time.Duration(tp.ExpiresIn) * time.Second).Unix()
	}
	if r.ExpiresAt == 0 {
		r.ExpiresAt = tokenExpiry(r.AccessToken)
	}
	c.logger.Debug("session accepted from auth api", zap.String("user_id", r.User.ID))
	return c.hold(r), nil
}

// hold stores a private copy of r and returns another copy, so neither
// the caller nor the client can mutate the other's record.
func (c *Client) hold(r *session.Record) *session.Record {
	cp := *r
	c.mu.Lock()
	c.held = &cp
	c.mu.Unlock()
	out := cp
	return &out
}

func (c *Client) forget() {
	c.mu.Lock()
	c.held = nil
	c.mu.Unlock()
}

func (c *Client) expired(expiresAt int64) bool {
	return expiresAt != 0 && !c.now().Before(time.Unix(expiresAt, 0))
}

func (c *Client) now() time.Time {
	if c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now()
}

// tokenExpiry extracts the exp claim from a JWT access token without
// verifying its signature. Expiry here is a refresh hint, not a
// security boundary; the service still rejects bad tokens.
func tokenExpiry(token string) int64 {
	claims := new(jwt.RegisteredClaims)
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix()
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, result any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authhttp: encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("authhttp: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authhttp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authhttp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("authhttp: decode response: %w", err)
		}
	}
	return nil
}

// classify wraps terminal API errors with session.ErrInvalidToken so
// callers can tell dead credentials from a briefly unavailable service.
func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.terminal() {
		return fmt.Errorf("%w: %w", apiErr, session.ErrInvalidToken)
	}
	return err
}
