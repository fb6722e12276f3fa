package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/tupahub/go-auth"
)

// MockProvider is an auth.IdentityProvider whose stream is driven by Emit.
type MockProvider struct {
	mock.Mock
	mu            sync.Mutex
	handlers      map[int]func(auth.AuthEvent)
	nextID        int
	Subscriptions int
	Released      int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{handlers: map[int]func(auth.AuthEvent){}}
}

func (m *MockProvider) Subscribe(handler func(auth.AuthEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions++
	m.nextID++
	id := m.nextID
	m.handlers[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.Released++
		delete(m.handlers, id)
	}
}

func (m *MockProvider) Emit(event auth.AuthEvent) {
	m.mu.Lock()
	handlers := make([]func(auth.AuthEvent), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (m *MockProvider) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockProvider) SignOut(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockProvider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	args := m.Called(ctx, refreshToken)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

// MockProfiles records upserts.
type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) Upsert(ctx context.Context, profile *auth.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// routerContext lets FakeContext embed router.Context without the embedded
// field name colliding with the Context() method.
type routerContext = router.Context

// FakeContext implements the slice of router.Context the auth handlers use.
// Unused methods fall through to the nil embedded interface.
type FakeContext struct {
	routerContext

	ctx       context.Context
	method    string
	url       string
	headers   map[string]string
	query     map[string]string
	cookies   map[string]string
	SetCookie []*router.Cookie
	locals    map[any]any
	body      any

	RedirectTo     string
	RedirectStatus int
	StatusCode     int
	Sent           string
	JSONBody       any
	NextCalled     bool
}

func NewFakeContext(method, url string) *FakeContext {
	return &FakeContext{
		ctx:     context.Background(),
		method:  method,
		url:     url,
		headers: map[string]string{},
		query:   map[string]string{},
		cookies: map[string]string{},
		locals:  map[any]any{},
	}
}

func (f *FakeContext) Context() context.Context { return f.ctx }
func (f *FakeContext) Method() string           { return f.method }
func (f *FakeContext) OriginalURL() string      { return f.url }

func (f *FakeContext) SetContext(ctx context.Context) { f.ctx = ctx }

func (f *FakeContext) Header(key string) string {
	return f.headers[key]
}

func (f *FakeContext) SetHeader(key, val string) router.Context {
	f.headers[key] = val
	return f
}

func (f *FakeContext) Query(key string, defaultValue ...string) string {
	if v, ok := f.query[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *FakeContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := f.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *FakeContext) Cookie(cookie *router.Cookie) {
	f.SetCookie = append(f.SetCookie, cookie)
}

func (f *FakeContext) LastCookie(name string) *router.Cookie {
	for i := len(f.SetCookie) - 1; i >= 0; i-- {
		if f.SetCookie[i].Name == name {
			return f.SetCookie[i]
		}
	}
	return nil
}

func (f *FakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return value[0]
	}
	return f.locals[key]
}

func (f *FakeContext) Redirect(path string, status ...int) error {
	f.RedirectTo = path
	if len(status) > 0 {
		f.RedirectStatus = status[0]
	}
	return nil
}

func (f *FakeContext) Status(code int) router.Context {
	f.StatusCode = code
	return f
}

func (f *FakeContext) SendString(s string) error {
	f.Sent = s
	return nil
}

func (f *FakeContext) JSON(code int, val any) error {
	f.StatusCode = code
	f.JSONBody = val
	return nil
}

func (f *FakeContext) Bind(i any) error {
	req, ok := i.(*auth.LoginRequest)
	if !ok {
		return fmt.Errorf("unexpected bind target %T", i)
	}
	if body, ok := f.body.(auth.LoginRequest); ok {
		*req = body
	}
	return nil
}

// captureLogger records formatted log lines.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debug(format string, args ...any) { l.add("DBG", format, args...) }
func (l *captureLogger) Info(format string, args ...any)  { l.add("INF", format, args...) }
func (l *captureLogger) Warn(format string, args ...any)  { l.add("WRN", format, args...) }
func (l *captureLogger) Error(format string, args ...any) { l.add("ERR", format, args...) }

func (l *captureLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Errors returns only the lines logged at error level.
func (l *captureLogger) Errors() []string {
	var out []string
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, "ERR ") {
			out = append(out, line)
		}
	}
	return out
}

// sourceFunc is an auth.EventSource that runs fn on Subscribe, on the
// caller's goroutine, the way a provider delivers its initial session.
type sourceFunc func(handler func(auth.AuthEvent)) func()

func (f sourceFunc) Subscribe(handler func(auth.AuthEvent)) func() {
	return f(handler)
}

func testSession(userID string, userRole, appRole any) *auth.Session {
	s := &auth.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		User: auth.Identity{
			ID:           userID,
			Email:        "staff@tupahub.com",
			UserMetadata: map[string]any{},
			AppMetadata:  map[string]any{},
		},
	}
	if userRole != nil {
		s.User.UserMetadata["role"] = userRole
	}
	if appRole != nil {
		s.User.AppMetadata["role"] = appRole
	}
	return s
}

const testJWTSecret = "tupa-test-signing-secret-0123456789"

func testOptions() auth.Options {
	opts := auth.DefaultOptions()
	opts.JWTSecret = testJWTSecret
	return opts
}

// signSession replaces the session's access token with a token signed by
// testJWTSecret that carries the session's identity and expiry.
func signSession(t *testing.T, s *auth.Session, secret string, exp time.Time) *auth.Session {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":           s.User.ID,
		"email":         s.User.Email,
		"role":          "authenticated",
		"user_metadata": s.User.UserMetadata,
		"app_metadata":  s.User.AppMetadata,
		"iat":           jwt.NewNumericDate(time.Now()),
	}
	if !exp.IsZero() {
		claims["exp"] = jwt.NewNumericDate(exp)
		s.ExpiresAt = exp.Unix()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	s.AccessToken = token
	return s
}

func signedSession(t *testing.T, userID string, userRole, appRole any) *auth.Session {
	t.Helper()
	return signSession(t, testSession(userID, userRole, appRole), testJWTSecret, time.Now().Add(time.Hour))
}
