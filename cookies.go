package auth

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// CookieJar is the part of router.Context the cookie storage needs.
type CookieJar interface {
	Cookies(key string, defaultValue ...string) string
	Cookie(cookie *router.Cookie)
	Header(key string) string
}

// CookieDomain returns the Domain attribute that lets sibling subdomains
// share a cookie. Hosts with three or more labels scope to the last two
// labels with a leading dot; shorter hosts and IP literals get no explicit
// domain.
func CookieDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || strings.HasPrefix(host, "[") {
		return ""
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}

	return "." + strings.Join(labels[len(labels)-2:], ".")
}

// CookieStorage is a Storage backed by request cookies. Writes are visible
// to every host under the computed cookie domain.
type CookieStorage struct {
	jar     CookieJar
	domain  string
	secure  bool
	maxAge  int
	pending map[string]*string
}

// CookieStorageOption customizes a CookieStorage.
type CookieStorageOption func(*CookieStorage)

// WithCookieHost overrides the host used to compute the cookie domain.
func WithCookieHost(host string) CookieStorageOption {
	return func(cs *CookieStorage) {
		cs.domain = CookieDomain(host)
	}
}

// WithCookieTransportSecure overrides transport detection.
func WithCookieTransportSecure(secure bool) CookieStorageOption {
	return func(cs *CookieStorage) {
		cs.secure = secure
	}
}

// NewCookieStorage binds a storage to the current request. The configured
// cookie host wins over request headers since some adapters do not expose
// Host as a header.
func NewCookieStorage(jar CookieJar, cfg Config, opts ...CookieStorageOption) *CookieStorage {
	trusted := cfg.GetTrustForwardedHeaders()
	host := cfg.GetCookieHost()
	if host == "" {
		host = requestHost(jar, trusted)
	}

	cs := &CookieStorage{
		jar:     jar,
		domain:  CookieDomain(host),
		secure:  cookieSecure(cfg.GetCookieSecureMode(), jar, host, trusted),
		maxAge:  cfg.GetCookieMaxAge(),
		pending: map[string]*string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cs)
		}
	}
	return cs
}

func (cs *CookieStorage) Domain() string {
	return cs.domain
}

func (cs *CookieStorage) Secure() bool {
	return cs.secure
}

func (cs *CookieStorage) Get(key string) (string, bool) {
	if v, ok := cs.pending[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	raw := cs.jar.Cookies(key)
	if raw == "" {
		return "", false
	}

	value, err := url.QueryUnescape(raw)
	if err != nil {
		return "", false
	}
	return value, true
}

func (cs *CookieStorage) Set(key, value string) error {
	cookie := cs.cookie(key)
	cookie.Value = url.QueryEscape(value)
	if cs.maxAge > 0 {
		cookie.MaxAge = cs.maxAge
		cookie.Expires = time.Now().Add(time.Duration(cs.maxAge) * time.Second)
	}
	cs.jar.Cookie(cookie)
	cs.pending[key] = &value
	return nil
}

func (cs *CookieStorage) Remove(key string) error {
	cookie := cs.cookie(key)
	cookie.MaxAge = -1
	cookie.Expires = time.Now().Add(-time.Hour * (24 * 365))
	cs.jar.Cookie(cookie)
	cs.pending[key] = nil
	return nil
}

func (cs *CookieStorage) cookie(name string) *router.Cookie {
	return &router.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   cs.domain,
		Secure:   cs.secure,
		HTTPOnly: true,
		SameSite: router.CookieSameSiteNoneMode,
	}
}

func requestHost(jar CookieJar, trusted bool) string {
	if trusted {
		if host := firstHeaderValue(jar, "X-Forwarded-Host"); host != "" {
			return host
		}
	}
	return jar.Header("Host")
}

func cookieSecure(mode string, jar CookieJar, host string, trusted bool) bool {
	switch mode {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	}

	if trusted {
		if proto := firstHeaderValue(jar, "X-Forwarded-Proto"); proto != "" {
			return strings.EqualFold(proto, "https")
		}
	}

	// SameSite=None needs Secure, so only loopback development runs without it.
	return !isLoopbackHost(host)
}

func firstHeaderValue(jar CookieJar, key string) string {
	value := jar.Header(key)
	if i := strings.Index(value, ","); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
