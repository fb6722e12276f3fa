package gotrue

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/tupahub/go-auth"
)

const defaultStorageKey = "auth-token"

// Config configures the client.
type Config struct {
	// URL is the auth API base, e.g. https://<project>.supabase.co/auth/v1.
	URL string

	// APIKey is the project's public anon key.
	APIKey string

	// Storage is the client's token cache. Defaults to an in-memory storage
	// namespaced with auth.DefaultStorageKeyPrefix.
	Storage auth.Storage

	// StorageKey is the session key inside Storage.
	StorageKey string

	// Stateless disables the token cache and the auth event stream. Set it
	// when one client serves many users, as behind auth.RouteAuthenticator;
	// the cache and stream model a single signed-in principal.
	Stateless bool

	HTTPClient *http.Client
	Logger     auth.Logger
}

// Validate checks required settings.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.APIKey, validation.Required),
	)
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
	if c.Storage == nil {
		c.Storage = auth.NewMemoryStorage(auth.DefaultStorageKeyPrefix)
	}
	if c.StorageKey == "" {
		c.StorageKey = defaultStorageKey
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}
