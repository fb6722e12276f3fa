package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// SessionLocalsKey is the router locals key a guarded request's session is stored under.
const SessionLocalsKey = "auth_session"

// LocationHeader carries the selected location for API clients that do not send cookies.
const LocationHeader = "X-Tupa-Location"

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
}

// LoginRequest is the sign-in form.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) GetIdentifier() string { return strings.TrimSpace(r.Email) }
func (r LoginRequest) GetPassword() string   { return r.Password }

// Validate checks the trimmed identifier so surrounding whitespace from
// pasted addresses is not rejected.
func (r LoginRequest) Validate() error {
	r.Email = r.GetIdentifier()
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RouteAuthenticator wires the identity provider, the cookie session
// mirror and the route guards into go-router handlers.
//
// The provider must not share one cached session across requests; use the
// provider's stateless mode here.
type RouteAuthenticator struct {
	provider     IdentityProvider
	cfg          Config
	verifier     SessionVerifier
	now          func() time.Time
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// AuthenticatorOption customizes a RouteAuthenticator.
type AuthenticatorOption func(*RouteAuthenticator)

// WithSessionVerifier replaces the JWT secret based verifier.
func WithSessionVerifier(verifier SessionVerifier) AuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if verifier != nil {
			a.verifier = verifier
		}
	}
}

// WithAuthenticatorClock overrides the clock used for expiry checks.
func WithAuthenticatorClock(now func() time.Time) AuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewHTTPAuthenticator needs a SessionVerifier, either passed as an option
// or built from the configured JWT secret.
func NewHTTPAuthenticator(provider IdentityProvider, cfg Config, opts ...AuthenticatorOption) (*RouteAuthenticator, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if cfg == nil {
		cfg = DefaultOptions()
	}

	a := &RouteAuthenticator{
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		Logger:   defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.verifier == nil {
		verifier, err := NewJWTVerifier(cfg.GetJWTSecret(), WithJWTVerifierClock(a.now))
		if err != nil {
			return nil, err
		}
		a.verifier = verifier
	}

	return a, nil
}

// SessionStore returns the cookie-backed session mirror for this request.
func (a *RouteAuthenticator) SessionStore(c CookieJar) *SessionStore {
	return NewSessionStore(
		NewCookieStorage(c, a.cfg),
		a.cfg.GetSessionCookieName(),
		WithSessionStoreLogger(a.Logger),
	)
}

// Login signs in through the provider and mirrors the session to the cookie.
func (a *RouteAuthenticator) Login(c router.Context, payload LoginPayload) (*Session, error) {
	session, err := a.provider.SignInWithPassword(c.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return nil, wrapProviderError(ErrSignInFailed, "sign_in", err)
	}

	if err := a.SessionStore(c).Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout clears the cookie even when the provider call fails; the provider
// error is still returned.
func (a *RouteAuthenticator) Logout(c router.Context) error {
	store := a.SessionStore(c)
	session, _ := store.Load()

	if err := store.Clear(); err != nil {
		a.Logger.Error("Logout: failed to clear session cookie: %v", err)
	}

	if session == nil {
		return nil
	}

	if err := a.provider.SignOut(c.Context(), session); err != nil {
		a.Logger.Error("Logout error: %s", err)
		return wrapProviderError(ErrSignOutFailed, "sign_out", err)
	}
	return nil
}

// Refresh exchanges the stored refresh token for a new session.
func (a *RouteAuthenticator) Refresh(c router.Context) (*Session, error) {
	store := a.SessionStore(c)
	session, ok := store.Load()
	if !ok {
		return nil, ErrNoSession
	}
	return a.refresh(c.Context(), store, session)
}

func (a *RouteAuthenticator) refresh(ctx context.Context, store *SessionStore, session *Session) (*Session, error) {
	if session.RefreshToken == "" {
		return nil, ErrNoSession
	}

	next, err := a.provider.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		return nil, wrapProviderError(ErrRefreshFailed, "refresh", err)
	}

	if err := store.Save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// CurrentSession loads the request's session and verifies its access
// token, refreshing it when the token has expired. The returned identity
// comes from the verified token. Any failure clears the cookie and reads as
// no session.
func (a *RouteAuthenticator) CurrentSession(c router.Context) (*Session, bool) {
	store := a.SessionStore(c)
	session, ok := store.Load()
	if !ok {
		return nil, false
	}

	if !session.Expired(a.now()) {
		verified, err := a.verifier.VerifySession(c.Context(), session)
		if err == nil {
			return verified, true
		}
		if !IsSessionExpired(err) {
			a.Logger.Warn("Rejected session cookie: %v", err)
			_ = store.Clear()
			return nil, false
		}
	}

	next, err := a.refresh(c.Context(), store, session)
	if err != nil {
		a.Logger.Info("Expired session could not be refreshed: %v", err)
		_ = store.Clear()
		return nil, false
	}

	verified, err := a.verifier.VerifySession(c.Context(), next)
	if err != nil {
		a.Logger.Warn("Refreshed session failed verification: %v", err)
		_ = store.Clear()
		return nil, false
	}
	return verified, true
}

// HasLocation reports whether the request carries a selected location.
func (a *RouteAuthenticator) HasLocation(c router.Context) bool {
	if c.Cookies(a.cfg.GetContextCookieName()) != "" {
		return true
	}
	return c.Header(LocationHeader) != ""
}

// Guard returns a middleware that applies policy on every request.
func (a *RouteAuthenticator) Guard(policy GuardPolicy) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			return a.guard(c, policy, next)
		}
	}
}

func (a *RouteAuthenticator) guard(c router.Context, policy GuardPolicy, next router.HandlerFunc) error {
	session, ok := a.CurrentSession(c)
	in := GuardInput{
		HasContext:    a.HasLocation(c),
		RequestedPath: c.OriginalURL(),
	}
	if ok {
		in.Session = session
	}

	decision := Evaluate(policy, in)

	switch decision.Kind {
	case DecisionAllow:
		c.Locals(SessionLocalsKey, session)
		c.SetContext(WithSession(c.Context(), session))
		return next(c)
	case DecisionRedirect:
		a.Logger.Info(
			"Guard %s redirecting %s to %s (%s)",
			policy.Name,
			in.RequestedPath,
			decision.Target,
			decision.Reason,
		)
		return c.Redirect(decision.Location(), redirectStatus(c))
	default:
		c.SetHeader("Retry-After", "1")
		return c.Status(http.StatusServiceUnavailable).SendString(decision.Message)
	}
}

// ReturnTo reads the returnTo query parameter. Only local paths are
// honoured so the parameter can not be used as an open redirect.
func (a *RouteAuthenticator) ReturnTo(c router.Context, def string) string {
	target := c.Query(ReturnToParam, "")
	if target == "" || !localPath.MatchString(target) {
		return def
	}
	return target
}

// HandleLogin binds a LoginRequest, signs in and redirects to returnTo or the dashboard.
func (a *RouteAuthenticator) HandleLogin(c router.Context) error {
	req := LoginRequest{}
	if err := c.Bind(&req); err != nil {
		return a.ErrorHandler(c, errors.Wrap(err, errors.CategoryBadInput, "invalid login request").
			WithCode(errors.CodeBadRequest))
	}

	if err := req.Validate(); err != nil {
		return a.ErrorHandler(c, errors.Wrap(err, errors.CategoryValidation, "invalid login request").
			WithCode(errors.CodeBadRequest))
	}

	if _, err := a.Login(c, req); err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.Redirect(a.ReturnTo(c, a.cfg.GetDashboardPath()), http.StatusSeeOther)
}

// HandleLogout signs out and redirects to the login page.
func (a *RouteAuthenticator) HandleLogout(c router.Context) error {
	if err := a.Logout(c); err != nil {
		a.Logger.Info("Logout finished with provider error: %v", err)
	}
	return c.Redirect(a.cfg.GetLoginPath(), redirectStatus(c))
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Auth handler error: %s category=%v details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	return c.JSON(code, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

func redirectStatus(c router.Context) int {
	if c.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
