package auth_test

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/tupahub/go-auth"
)

func newAuthenticator(t *testing.T, p *MockProvider) *auth.RouteAuthenticator {
	t.Helper()
	a, err := auth.NewHTTPAuthenticator(p, testOptions())
	require.NoError(t, err)
	a.Logger = &captureLogger{}
	return a
}

func withSessionCookie(t *testing.T, c *FakeContext, s *auth.Session) {
	t.Helper()
	raw, err := auth.EncodeSession(s)
	require.NoError(t, err)
	c.cookies[auth.DefaultSessionCookieName] = url.QueryEscape(raw)
}

func okHandler(c router.Context) error {
	return c.SendString("ok")
}

func TestNewHTTPAuthenticatorRequiresProvider(t *testing.T) {
	_, err := auth.NewHTTPAuthenticator(nil, nil)
	assert.ErrorIs(t, err, auth.ErrProviderRequired)
}

func TestNewHTTPAuthenticatorRequiresVerifier(t *testing.T) {
	_, err := auth.NewHTTPAuthenticator(NewMockProvider(), auth.DefaultOptions())
	assert.ErrorIs(t, err, auth.ErrVerifierRequired)

	verifier, err := auth.NewJWTVerifier(testJWTSecret)
	require.NoError(t, err)
	_, err = auth.NewHTTPAuthenticator(NewMockProvider(), auth.DefaultOptions(), auth.WithSessionVerifier(verifier))
	assert.NoError(t, err)
}

func TestGuardMiddlewareRedirectsAnonymous(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.AdminGuard(auth.DefaultOptions()))(okHandler)

	c := NewFakeContext("GET", "/admin/users")
	require.NoError(t, handler(c))

	assert.Equal(t, "/admin/login?returnTo=%2Fadmin%2Fusers", c.RedirectTo)
	assert.Equal(t, http.StatusFound, c.RedirectStatus)
	assert.Empty(t, c.Sent)
}

func TestGuardMiddlewareForbidden(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.AdminGuard(auth.DefaultOptions()))(okHandler)

	c := NewFakeContext("POST", "/admin/users")
	withSessionCookie(t, c, signedSession(t, "u-1", "owner", nil))
	require.NoError(t, handler(c))

	assert.Equal(t, "/dashboard", c.RedirectTo)
	assert.Equal(t, http.StatusSeeOther, c.RedirectStatus)
}

func TestGuardMiddlewareAllowsAdmin(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.AdminGuard(auth.DefaultOptions()))(okHandler)

	c := NewFakeContext("GET", "/admin/users")
	withSessionCookie(t, c, signedSession(t, "u-1", nil, "admin"))
	require.NoError(t, handler(c))

	assert.Equal(t, "ok", c.Sent)
	assert.Empty(t, c.RedirectTo)

	session, ok := auth.SessionFromLocals(c)
	require.True(t, ok)
	assert.Equal(t, "u-1", session.User.ID)
}

func TestGuardMiddlewareLocation(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.LocationGuard(auth.DefaultOptions()))(okHandler)

	c := NewFakeContext("GET", "/orders")
	withSessionCookie(t, c, signedSession(t, "u-1", "barista", nil))
	require.NoError(t, handler(c))
	assert.Equal(t, "/onboarding?returnTo=%2Forders", c.RedirectTo)

	c = NewFakeContext("GET", "/orders")
	withSessionCookie(t, c, signedSession(t, "u-1", "barista", nil))
	c.cookies[auth.DefaultContextCookieName] = "loc-42"
	require.NoError(t, handler(c))
	assert.Equal(t, "ok", c.Sent)

	c = NewFakeContext("GET", "/orders")
	withSessionCookie(t, c, signedSession(t, "u-1", "barista", nil))
	c.headers[auth.LocationHeader] = "loc-42"
	require.NoError(t, handler(c))
	assert.Equal(t, "ok", c.Sent)
}

func TestGuardMiddlewareRefreshesExpiredSession(t *testing.T) {
	p := NewMockProvider()
	fresh := signedSession(t, "u-1", "owner", nil)
	p.On("RefreshSession", mock.Anything, "refresh-u-1").Return(fresh, nil)

	a := newAuthenticator(t, p)
	handler := a.Guard(auth.ProtectedGuard(auth.DefaultOptions()))(okHandler)

	expired := signSession(t, testSession("u-1", "owner", nil), testJWTSecret, time.Now().Add(-time.Minute))

	c := NewFakeContext("GET", "/dashboard")
	withSessionCookie(t, c, expired)
	require.NoError(t, handler(c))

	assert.Equal(t, "ok", c.Sent)
	p.AssertExpectations(t)

	cookie := c.LastCookie(auth.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	raw, err := url.QueryUnescape(cookie.Value)
	require.NoError(t, err)
	stored, ok := auth.DecodeSession(raw)
	require.True(t, ok)
	assert.Equal(t, fresh.AccessToken, stored.AccessToken)
}

func TestGuardMiddlewareRefreshesWhenTokenExpiresBeforeCookie(t *testing.T) {
	p := NewMockProvider()
	fresh := signedSession(t, "u-1", "owner", nil)
	p.On("RefreshSession", mock.Anything, "refresh-u-1").Return(fresh, nil)

	a := newAuthenticator(t, p)
	handler := a.Guard(auth.ProtectedGuard(auth.DefaultOptions()))(okHandler)

	stale := signSession(t, testSession("u-1", "owner", nil), testJWTSecret, time.Now().Add(-time.Minute))
	stale.ExpiresAt = 0

	c := NewFakeContext("GET", "/dashboard")
	withSessionCookie(t, c, stale)
	require.NoError(t, handler(c))

	assert.Equal(t, "ok", c.Sent)
	p.AssertExpectations(t)
}

func TestGuardMiddlewareRejectsForgedSession(t *testing.T) {
	otherSecret := "another-signing-secret-0123456789abc"

	tests := []struct {
		name    string
		session func(t *testing.T) *auth.Session
	}{
		{
			name: "unsigned token with admin metadata",
			session: func(t *testing.T) *auth.Session {
				return testSession("u-1", "admin", "admin")
			},
		},
		{
			name: "token signed with another secret",
			session: func(t *testing.T) *auth.Session {
				return signSession(t, testSession("u-1", "admin", nil), otherSecret, time.Now().Add(time.Hour))
			},
		},
		{
			name: "token without exp",
			session: func(t *testing.T) *auth.Session {
				return signSession(t, testSession("u-1", "admin", nil), testJWTSecret, time.Time{})
			},
		},
		{
			name: "token issued to another user",
			session: func(t *testing.T) *auth.Session {
				s := signedSession(t, "u-2", "admin", nil)
				s.User.ID = "u-1"
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuthenticator(t, NewMockProvider())

			var adminFromRouter bool
			handler := a.Guard(auth.AdminGuard(auth.DefaultOptions()))(func(c router.Context) error {
				adminFromRouter = auth.HasRoleFromRouter(c, auth.RoleAdmin)
				return c.SendString("ok")
			})

			c := NewFakeContext("GET", "/admin/users")
			withSessionCookie(t, c, tt.session(t))
			require.NoError(t, handler(c))

			assert.Equal(t, "/admin/login?returnTo=%2Fadmin%2Fusers", c.RedirectTo)
			assert.Empty(t, c.Sent)
			assert.False(t, adminFromRouter)

			cookie := c.LastCookie(auth.DefaultSessionCookieName)
			require.NotNil(t, cookie)
			assert.Equal(t, -1, cookie.MaxAge)
		})
	}
}

func TestGuardMiddlewareUsesVerifiedClaims(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.AdminGuard(auth.DefaultOptions()))(okHandler)

	// cookie body edited after signing; the token still says barista
	session := signedSession(t, "u-1", "barista", nil)
	session.User.UserMetadata = map[string]any{"role": "admin"}
	session.User.AppMetadata = map[string]any{"role": "admin"}

	c := NewFakeContext("GET", "/admin/users")
	withSessionCookie(t, c, session)
	require.NoError(t, handler(c))

	assert.Equal(t, "/dashboard", c.RedirectTo)
	assert.Empty(t, c.Sent)
}

func TestGuardMiddlewareFailedRefreshReadsAsSignedOut(t *testing.T) {
	p := NewMockProvider()
	p.On("RefreshSession", mock.Anything, mock.Anything).Return(nil, errors.New("invalid refresh token"))

	a := newAuthenticator(t, p)
	handler := a.Guard(auth.ProtectedGuard(auth.DefaultOptions()))(okHandler)

	expired := signSession(t, testSession("u-1", nil, nil), testJWTSecret, time.Now().Add(-time.Minute))

	c := NewFakeContext("GET", "/dashboard")
	withSessionCookie(t, c, expired)
	require.NoError(t, handler(c))

	assert.Equal(t, "/login?returnTo=%2Fdashboard", c.RedirectTo)
	cookie := c.LastCookie(auth.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestGuardMiddlewareCorruptCookie(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	handler := a.Guard(auth.ProtectedGuard(auth.DefaultOptions()))(okHandler)

	c := NewFakeContext("GET", "/dashboard")
	c.cookies[auth.DefaultSessionCookieName] = "garbage"
	require.NoError(t, handler(c))

	assert.Equal(t, "/login?returnTo=%2Fdashboard", c.RedirectTo)
}

func TestHandleLogin(t *testing.T) {
	p := NewMockProvider()
	session := testSession("u-1", "owner", nil)
	p.On("SignInWithPassword", mock.Anything, "owner@tupahub.com", "s3cret").Return(session, nil)

	a := newAuthenticator(t, p)

	c := NewFakeContext("POST", "/login")
	c.body = auth.LoginRequest{Email: " owner@tupahub.com ", Password: "s3cret"}
	c.query[auth.ReturnToParam] = "/orders"

	require.NoError(t, a.HandleLogin(c))
	assert.Equal(t, "/orders", c.RedirectTo)
	assert.Equal(t, http.StatusSeeOther, c.RedirectStatus)

	cookie := c.LastCookie(auth.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	p.AssertExpectations(t)
}

func TestLoginRequestValidateTrimsEmail(t *testing.T) {
	req := auth.LoginRequest{Email: "\t owner@tupahub.com \n", Password: "s3cret"}
	assert.NoError(t, req.Validate())
	assert.Equal(t, "owner@tupahub.com", req.GetIdentifier())

	req = auth.LoginRequest{Email: "   ", Password: "s3cret"}
	assert.Error(t, req.Validate())
}

func TestHandleLoginProviderError(t *testing.T) {
	p := NewMockProvider()
	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("invalid login credentials"))

	a := newAuthenticator(t, p)

	c := NewFakeContext("POST", "/login")
	c.body = auth.LoginRequest{Email: "owner@tupahub.com", Password: "wrong"}

	require.NoError(t, a.HandleLogin(c))
	assert.Equal(t, http.StatusUnauthorized, c.StatusCode)

	body, ok := c.JSONBody.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, auth.TextCodeSignInFailed, body["text_code"])
	assert.Nil(t, c.LastCookie(auth.DefaultSessionCookieName))
}

func TestHandleLoginValidation(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())

	c := NewFakeContext("POST", "/login")
	c.body = auth.LoginRequest{Email: "not-an-email", Password: ""}

	require.NoError(t, a.HandleLogin(c))
	assert.Equal(t, http.StatusBadRequest, c.StatusCode)
}

func TestLoginWrapsProviderError(t *testing.T) {
	p := NewMockProvider()
	cause := errors.New("upstream unavailable")
	p.On("SignInWithPassword", mock.Anything, mock.Anything, mock.Anything).Return(nil, cause)

	a := newAuthenticator(t, p)
	_, err := a.Login(NewFakeContext("POST", "/login"), auth.LoginRequest{Email: "a@tupahub.com", Password: "x"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeSignInFailed, richErr.TextCode)
	assert.Equal(t, cause, richErr.Source)
	assert.Equal(t, "sign_in", richErr.Metadata["operation"])
}

func TestHandleLogoutClearsCookieEvenOnProviderError(t *testing.T) {
	p := NewMockProvider()
	p.On("SignOut", mock.Anything, mock.Anything).Return(errors.New("network down"))

	a := newAuthenticator(t, p)

	c := NewFakeContext("GET", "/logout")
	withSessionCookie(t, c, testSession("u-1", nil, nil))

	require.NoError(t, a.HandleLogout(c))
	assert.Equal(t, "/login", c.RedirectTo)

	cookie := c.LastCookie(auth.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
	p.AssertExpectations(t)
}

func TestLogoutWithoutSessionSkipsProvider(t *testing.T) {
	p := NewMockProvider()
	a := newAuthenticator(t, p)

	require.NoError(t, a.Logout(NewFakeContext("POST", "/logout")))
	p.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
}

func TestRefreshWithoutSession(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())
	_, err := a.Refresh(NewFakeContext("POST", "/refresh"))
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestReturnToRejectsOpenRedirects(t *testing.T) {
	a := newAuthenticator(t, NewMockProvider())

	tests := []struct {
		value    string
		expected string
	}{
		{value: "/orders?tab=open", expected: "/orders?tab=open"},
		{value: "/", expected: "/"},
		{value: "", expected: "/dashboard"},
		{value: "https://evil.example", expected: "/dashboard"},
		{value: "//evil.example", expected: "/dashboard"},
		{value: "/\\evil.example", expected: "/dashboard"},
		{value: "orders", expected: "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c := NewFakeContext("GET", "/login")
			if tt.value != "" {
				c.query[auth.ReturnToParam] = tt.value
			}
			assert.Equal(t, tt.expected, a.ReturnTo(c, "/dashboard"))
		})
	}
}
