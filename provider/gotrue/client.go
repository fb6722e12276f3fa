package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/tupahub/go-auth"
)

var (
	_ auth.IdentityProvider = (*Client)(nil)
	_ auth.SessionVerifier  = (*Client)(nil)
)

// Client talks to the auth API and, unless Config.Stateless is set, owns
// the local token cache and the auth event stream.
type Client struct {
	cfg    Config
	http   *http.Client
	store  *auth.SessionStore
	logger auth.Logger
	now    func() time.Time

	mu       sync.Mutex
	handlers []handlerEntry
	nextID   uint64
}

type handlerEntry struct {
	id      uint64
	handler func(auth.AuthEvent)
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gotrue: invalid config: %w", err)
	}
	cfg = cfg.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		store:  auth.NewSessionStore(cfg.Storage, cfg.StorageKey, auth.WithSessionStoreLogger(logger)),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Subscribe implements auth.EventSource. The handler immediately receives
// INITIAL_SESSION with the cached session, if any. A stateless client has
// no stream and never calls handler.
func (c *Client) Subscribe(handler func(auth.AuthEvent)) func() {
	if handler == nil || c.cfg.Stateless {
		return func() {}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, handlerEntry{id: id, handler: handler})
	c.mu.Unlock()

	session, _ := c.store.Load()
	handler(auth.AuthEvent{Kind: auth.EventInitialSession, Session: session, OccurredAt: c.now()})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, h := range c.handlers {
				if h.id == id {
					c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Session returns the cached session.
func (c *Client) Session() (*auth.Session, bool) {
	if c.cfg.Stateless {
		return nil, false
	}
	return c.store.Load()
}

// SignInWithPassword implements auth.IdentityProvider.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	session, err := c.token(ctx, "sign_in", "password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	c.commit(auth.EventSignedIn, session)
	return session, nil
}

// ExchangeCodeForSession completes a PKCE flow.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*auth.Session, error) {
	session, err := c.token(ctx, "exchange_code", "pkce", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, err
	}
	c.commit(auth.EventSignedIn, session)
	return session, nil
}

// RefreshSession implements auth.IdentityProvider.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	session, err := c.token(ctx, "refresh", "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	c.commit(auth.EventTokenRefreshed, session)
	return session, nil
}

// SignOut implements auth.IdentityProvider. A session the service no
// longer knows about counts as signed out.
func (c *Client) SignOut(ctx context.Context, session *auth.Session) error {
	if session.Valid() {
		req, err := c.newRequest(ctx, http.MethodPost, "/logout", nil, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)

		err = c.do(req, "sign_out", nil)
		var apiErr *APIError
		if err != nil {
			if !errors.As(err, &apiErr) || (apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusNotFound) {
				return err
			}
			c.logger.Debug("gotrue: session already gone on sign out: %v", err)
		}
	}

	if c.cfg.Stateless {
		return nil
	}

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("gotrue: failed to clear token cache: %v", err)
	}
	c.emit(auth.AuthEvent{Kind: auth.EventSignedOut, OccurredAt: c.now()})
	return nil
}

// GetUser fetches the identity for an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/user", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var identity auth.Identity
	if err := c.do(req, "get_user", &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// VerifySession implements auth.SessionVerifier by asking the service who
// the access token belongs to. The identity in the result is the service's.
func (c *Client) VerifySession(ctx context.Context, session *auth.Session) (*auth.Session, error) {
	if !session.Valid() {
		return nil, auth.ErrNoSession
	}

	identity, err := c.GetUser(ctx, session.AccessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			expired := auth.ErrSessionExpired.Clone()
			expired.Source = err
			return nil, expired
		}
		invalid := auth.ErrInvalidSession.Clone()
		invalid.Source = err
		return nil, invalid
	}

	if identity.ID != session.User.ID {
		return nil, auth.ErrInvalidSession
	}

	verified := *session
	verified.User = *identity
	return &verified, nil
}

func (c *Client) token(ctx context.Context, operation, grantType string, body map[string]string) (*auth.Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/token", url.Values{"grant_type": {grantType}}, body)
	if err != nil {
		return nil, err
	}

	var session auth.Session
	if err := c.do(req, operation, &session); err != nil {
		return nil, err
	}

	if session.ExpiresAt == 0 {
		session.ExpiresAt = c.expiresAt(&session)
	}

	if !session.Valid() {
		return nil, &APIError{Operation: operation, Status: http.StatusOK, Description: "response carried no usable session"}
	}
	return &session, nil
}

// expiresAt reads exp from the access token when the response omitted
// expires_at. The signature is not checked here; the service does that on
// every call carrying the token.
func (c *Client) expiresAt(session *auth.Session) int64 {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.AccessToken, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Unix()
	}
	if session.ExpiresIn > 0 {
		return c.now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	return 0
}

func (c *Client) commit(kind auth.AuthEventKind, session *auth.Session) {
	if c.cfg.Stateless {
		return
	}
	if err := c.store.Save(session); err != nil {
		c.logger.Warn("gotrue: failed to cache session: %v", err)
	}
	c.emit(auth.AuthEvent{Kind: kind, Session: session, OccurredAt: c.now()})
}

func (c *Client) emit(event auth.AuthEvent) {
	c.mu.Lock()
	handlers := make([]handlerEntry, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h.handler(event)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	endpoint := c.cfg.URL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gotrue: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("gotrue: build request: %w", err)
	}

	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Operation: operation, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body errorBody
		_ = json.Unmarshal(raw, &body)
		return &APIError{
			Operation:   operation,
			Status:      resp.StatusCode,
			Code:        body.code(),
			Description: body.description(),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Operation: operation, Status: resp.StatusCode, Err: err}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
