package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/stratgate/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const minTokenLifetime = 60 * time.Second

// Config locates the identity provider endpoints.
type Config struct {
	TokenURL     string
	UserInfoURL  string
	SignupURL    string
	RevokeURL    string
	ClientID     string
	ClientSecret string
}

var _ Provider = (*Client)(nil)

// Client talks to an OAuth2/OIDC identity provider. It holds no session state.
type Client struct {
	config     Config
	oauth      *oauth2.Config
	httpClient *http.Client
	nowTime    func() time.Time
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func NewClient(config Config, options ...ClientOption) *Client {
	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nowTime:    time.Now,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) Refresh(ctx context.Context, refreshToken, fallbackUserID, fallbackEmail string) (*sessions.Snapshot, error) {
	if c.config.TokenURL == "" {
		return nil, fmt.Errorf("[identity Refresh] token endpoint: %w", ErrNotConfigured)
	}
	if refreshToken == "" {
		return nil, nil
	}

	ts := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			log.Warn().Int("status", statusOf(retrieveErr)).Str("error_code", retrieveErr.ErrorCode).Msg("identity: refresh rejected")
			return nil, nil
		}
		return nil, fmt.Errorf("[identity Refresh] %w", err)
	}

	return c.snapshotFromToken(tok, fallbackUserID, fallbackEmail), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*sessions.Snapshot, error) {
	if c.config.TokenURL == "" {
		return nil, fmt.Errorf("[identity Login] token endpoint: %w", ErrNotConfigured)
	}

	tok, err := c.oauth.PasswordCredentialsToken(c.clientContext(ctx), email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("[identity Login] %w", err)
	}

	s := c.snapshotFromToken(tok, "", email)
	if !s.Valid() {
		return nil, errors.New("[identity Login] provider issued no refresh token")
	}
	return s, nil
}

func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	if c.config.UserInfoURL == "" {
		return nil, fmt.Errorf("[identity CurrentUser] userinfo endpoint: %w", ErrNotConfigured)
	}
	if accessToken == "" {
		return nil, nil
	}

	ctx = oidc.ClientContext(ctx, c.httpClient)
	provider := (&oidc.ProviderConfig{UserInfoURL: c.config.UserInfoURL}).NewProvider(ctx)
	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	if err != nil {
		log.Debug().Err(err).Msg("identity: userinfo lookup failed")
		return nil, nil
	}
	if info.Subject == "" {
		return nil, nil
	}
	return &User{ID: info.Subject, Email: info.Email}, nil
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

type signupResponse struct {
	User    *User         `json:"user"`
	ID      string        `json:"id"`
	Email   string        `json:"email"`
	Session *tokenPayload `json:"session"`
	tokenPayload
}

func (c *Client) Signup(ctx context.Context, email, password string) (*SignupResult, error) {
	if c.config.SignupURL == "" {
		return nil, fmt.Errorf("[identity Signup] signup endpoint: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(signupRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("[identity Signup] marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SignupURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[identity Signup] request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[identity Signup] %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("[identity Signup] provider status %d", resp.StatusCode)
		}
		return nil, ErrSignupRejected
	}

	var out signupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("[identity Signup] decode: %w", err)
	}

	result := &SignupResult{UserID: out.ID, Email: out.Email}
	if out.User != nil {
		result.UserID = out.User.ID
		result.Email = out.User.Email
	}
	if result.Email == "" {
		result.Email = email
	}

	session := out.Session
	if session == nil && out.AccessToken != "" {
		session = &out.tokenPayload
	}
	if session != nil && session.AccessToken != "" && session.RefreshToken != "" {
		result.Session = &sessions.Snapshot{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    c.resolveExpiry(session.ExpiresAt, session.ExpiresIn, time.Time{}),
			UserID:       result.UserID,
			Email:        result.Email,
		}
	}
	return result, nil
}

func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if c.config.RevokeURL == "" {
		log.Debug().Msg("identity: no revocation endpoint, skipping token revocation")
		return nil
	}

	var errs []error
	if refreshToken != "" {
		errs = append(errs, c.revokeToken(ctx, refreshToken, "refresh_token"))
	}
	if accessToken != "" {
		errs = append(errs, c.revokeToken(ctx, accessToken, "access_token"))
	}
	return errors.Join(errs...)
}

func (c *Client) revokeToken(ctx context.Context, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	if c.config.ClientID != "" {
		form.Set("client_id", c.config.ClientID)
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[identity Logout] %s: %w", tokenTypeHint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[identity Logout] %s: %w", tokenTypeHint, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("[identity Logout] %s: provider status %d", tokenTypeHint, resp.StatusCode)
	}
	return nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func statusOf(err *oauth2.RetrieveError) int {
	if err.Response == nil {
		return 0
	}
	return err.Response.StatusCode
}
