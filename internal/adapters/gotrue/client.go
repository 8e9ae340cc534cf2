// Package gotrue implements ports.IdentityService against a GoTrue-compatible
// auth server over its REST API.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tracenation/tracenation-api/internal/adapters/authsession"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	opSignIn     = "sign_in"
	opSignUp     = "sign_up"
	opSignOut    = "sign_out"
	opRefresh    = "refresh"
	opUpdateUser = "update_user"

	defaultTimeout       = 10 * time.Second
	defaultRefreshMargin = 30 * time.Second
	maxResponseBytes     = 1 << 20
)

// Config holds configuration for the GoTrue client.
type Config struct {
	URL     string
	AnonKey string
	// Verifier, when set, checks every access token the server issues.
	Verifier Verifier
	Tokens   ports.TokenStore
	// RefreshMargin refreshes tokens this long before they expire.
	RefreshMargin time.Duration
	HTTPClient    *http.Client // Optional, defaults to a client with a 10s timeout
	Logger        *slog.Logger
	Now           func() time.Time
}

// Client is shared by all browser sessions; ForSession binds it to one.
type Client struct {
	base          *url.URL
	anonKey       string
	verifier      Verifier
	tokens        ports.TokenStore
	refreshMargin time.Duration
	http          *http.Client
	logger        *slog.Logger
	now           func() time.Time

	refreshes singleflight.Group
}

var _ ports.IdentityFactory = (*Client)(nil)

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("gotrue url is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("gotrue anon key is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gotrue url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gotrue url must be http or https, got %q", cfg.URL)
	}

	c := &Client{
		base:          base,
		anonKey:       cfg.AnonKey,
		verifier:      cfg.Verifier,
		tokens:        cfg.Tokens,
		refreshMargin: cfg.RefreshMargin,
		http:          cfg.HTTPClient,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if c.refreshMargin <= 0 {
		c.refreshMargin = defaultRefreshMargin
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "gotrue")
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// ForSession implements ports.IdentityFactory.
func (c *Client) ForSession(sid string) ports.IdentityService {
	return &Session{
		client: c,
		holder: authsession.NewHolder(authsession.HolderOptions{SID: sid, Tokens: c.tokens, Logger: c.logger}),
	}
}

// wireUser is the user object of the REST API.
type wireUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	UserMetadata     map[string]any `json:"user_metadata"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
}

func (u wireUser) toDomain() domainauth.User {
	return domainauth.User{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// tokenResponse is returned by /token and, with autoconfirm, by /signup.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         *wireUser `json:"user"`
}

// signUpResponse covers both sign-up shapes: a session, or the bare user
// when confirmation is required.
type signUpResponse struct {
	tokenResponse
	wireUser
}

func (c *Client) session(ctx context.Context, tr tokenResponse) (domainauth.Session, error) {
	if tr.AccessToken == "" || tr.User == nil || tr.User.ID == "" {
		return domainauth.Session{}, errors.New("token response without session")
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	switch {
	case tr.ExpiresAt > 0:
		tok.Expiry = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		tok.Expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if c.verifier != nil {
		claims, err := c.verifier.Verify(ctx, tr.AccessToken)
		if err != nil {
			return domainauth.Session{}, err
		}
		if claims.Subject != tr.User.ID {
			return domainauth.Session{}, fmt.Errorf("access token subject %q does not match user %q", claims.Subject, tr.User.ID)
		}
		if tok.Expiry.IsZero() && claims.ExpiresAt != nil {
			tok.Expiry = claims.ExpiresAt.Time
		}
	}
	return domainauth.Session{Token: tok, User: tr.User.toDomain()}, nil
}

// fresh reports whether tok stays valid for at least the refresh margin.
func (c *Client) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return c.now().Add(c.refreshMargin).Before(tok.Expiry)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
