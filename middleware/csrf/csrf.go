// Package csrf protects cookie-authenticated form posts. Session cookies
// are issued with SameSite=None, so browsers attach them to cross-site
// requests and the session alone does not prove intent.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
	auth "github.com/tupahub/go-auth"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key must be at least 32 bytes")
)

const (
	DefaultContextKey    = "csrf_token"
	DefaultFormFieldName = "_token"
	DefaultHeaderName    = "X-CSRF-Token"
	nonceLength          = 16
)

// Config defines the configuration for the CSRF middleware.
type Config struct {
	// Skip defines a function to skip the middleware.
	Skip func(router.Context) bool

	// SecureKey signs tokens. Required, at least 32 bytes.
	SecureKey []byte

	// Expiration bounds token age. Defaults to 12 hours.
	Expiration time.Duration

	ContextKey    string
	FormFieldName string
	HeaderName    string

	// SafeMethods are not validated.
	SafeMethods []string

	ErrorHandler func(c router.Context, err error) error

	now func() time.Time
}

// New returns a middleware that issues a token into Locals on every request
// and validates it on unsafe methods. Tokens are bound to the signed-in user
// when a guard ran first, otherwise to the client IP.
func New(cfg Config) (router.MiddlewareFunc, error) {
	cfg, err := configDefault(cfg)
	if err != nil {
		return nil, err
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Skip != nil && cfg.Skip(c) {
				return next(c)
			}

			binding := bindingKey(c)

			token, err := issue(cfg, binding)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			c.Locals(cfg.ContextKey, token)
			if cfg.ContextKey != DefaultContextKey {
				c.Locals(DefaultContextKey, token)
			}

			if slices.Contains(cfg.SafeMethods, strings.ToUpper(c.Method())) {
				return next(c)
			}

			if err := validate(cfg, binding, extract(c, cfg)); err != nil {
				return cfg.ErrorHandler(c, err)
			}
			return next(c)
		}
	}, nil
}

// Token returns the token issued for the current request. It works with any
// Config.ContextKey since the token is also kept under DefaultContextKey.
func Token(c router.Context) string {
	token, _ := c.Locals(DefaultContextKey).(string)
	return token
}

func issue(cfg Config, binding string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s", cfg.now().UTC().Unix(), hex.EncodeToString(nonce))
	signature := sign(cfg.SecureKey, payload, binding)

	return base64.RawURLEncoding.EncodeToString([]byte(payload + ":" + signature)), nil
}

func validate(cfg Config, binding, token string) error {
	if token == "" {
		return ErrTokenMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return ErrTokenMismatch
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	expected := sign(cfg.SecureKey, parts[0]+":"+parts[1], binding)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return ErrTokenMismatch
	}

	if cfg.now().UTC().After(time.Unix(timestamp, 0).Add(cfg.Expiration)) {
		return ErrTokenExpired
	}
	return nil
}

func sign(key []byte, payload, binding string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	mac.Write([]byte{0})
	mac.Write([]byte(binding))
	return hex.EncodeToString(mac.Sum(nil))
}

func bindingKey(c router.Context) string {
	if session, ok := auth.SessionFromLocals(c); ok {
		return "user:" + session.User.ID
	}
	return "ip:" + c.IP()
}

func extract(c router.Context, cfg Config) string {
	if token := c.Header(cfg.HeaderName); token != "" {
		return token
	}
	return c.FormValue(cfg.FormFieldName)
}

func configDefault(cfg Config) (Config, error) {
	if len(cfg.SecureKey) < 32 {
		return cfg, ErrSecureKeyMissing
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 12 * time.Hour
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg, nil
}

func defaultErrorHandler(c router.Context, err error) error {
	switch err {
	case ErrTokenMissing:
		return c.Status(http.StatusBadRequest).SendString("CSRF token missing")
	case ErrTokenMismatch:
		return c.Status(http.StatusForbidden).SendString("CSRF token mismatch")
	case ErrTokenExpired:
		return c.Status(http.StatusForbidden).SendString("CSRF token expired")
	default:
		return c.Status(http.StatusInternalServerError).SendString("CSRF validation error")
	}
}
