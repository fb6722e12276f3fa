package auth

import (
	"os"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	toml "github.com/pelletier/go-toml/v2"
)

// Cookie secure modes. SecureAuto sets Secure unless the request is known to
// be plain HTTP: a loopback host, or a trusted proxy reporting http.
const (
	SecureAuto   = "auto"
	SecureAlways = "always"
	SecureNever  = "never"
)

// Token flow types understood by the identity provider.
const (
	FlowPKCE     = "pkce"
	FlowImplicit = "implicit"
)

const (
	DefaultSessionCookieName = "tupa-auth-session"
	DefaultContextCookieName = "tupa-location"
	DefaultStorageKeyPrefix  = "sb-"
)

var localPath = regexp.MustCompile(`^/([^/\\].*)?$`)

var _ Config = Options{}

// Options is the default Config implementation. Zero values are replaced by
// DefaultOptions when loaded from a file.
type Options struct {
	SessionCookieName string `toml:"session_cookie_name"`
	ContextCookieName string `toml:"context_cookie_name"`
	CookieMaxAge      int    `toml:"cookie_max_age"`
	CookieSecureMode  string `toml:"cookie_secure"`
	CookieHost        string `toml:"cookie_host"`
	TrustForwarded    bool   `toml:"trust_forwarded_headers"`
	JWTSecret         string `toml:"jwt_secret"`
	StorageKeyPrefix  string `toml:"storage_key_prefix"`
	LoginPath         string `toml:"login_path"`
	AdminLoginPath    string `toml:"admin_login_path"`
	DashboardPath     string `toml:"dashboard_path"`
	OnboardingPath    string `toml:"onboarding_path"`
	FlowType          string `toml:"flow_type"`
}

// DefaultOptions returns the options the café dashboard runs with.
func DefaultOptions() Options {
	return Options{
		SessionCookieName: DefaultSessionCookieName,
		ContextCookieName: DefaultContextCookieName,
		CookieMaxAge:      60 * 60 * 24 * 7,
		CookieSecureMode:  SecureAuto,
		StorageKeyPrefix:  DefaultStorageKeyPrefix,
		LoginPath:         "/login",
		AdminLoginPath:    "/admin/login",
		DashboardPath:     "/dashboard",
		OnboardingPath:    "/onboarding",
		FlowType:          FlowPKCE,
	}
}

// LoadOptions reads a TOML file on top of DefaultOptions and validates the result.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrap(err, errors.CategoryInternal, "failed to read auth config").
			WithMetadata(map[string]any{"path": path})
	}

	if err := toml.Unmarshal(raw, &opts); err != nil {
		return opts, errors.Wrap(err, errors.CategoryValidation, "failed to parse auth config").
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"path": path})
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}

	return opts, nil
}

// Validate checks option values.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.SessionCookieName, validation.Required),
		validation.Field(&o.ContextCookieName, validation.Required),
		validation.Field(&o.CookieMaxAge, validation.Min(0)),
		validation.Field(&o.CookieSecureMode, validation.Required, validation.In(SecureAuto, SecureAlways, SecureNever)),
		validation.Field(&o.LoginPath, validation.Required, validation.Match(localPath)),
		validation.Field(&o.AdminLoginPath, validation.Required, validation.Match(localPath)),
		validation.Field(&o.DashboardPath, validation.Required, validation.Match(localPath)),
		validation.Field(&o.OnboardingPath, validation.Required, validation.Match(localPath)),
		validation.Field(&o.FlowType, validation.Required, validation.In(FlowPKCE, FlowImplicit)),
		validation.Field(&o.JWTSecret, validation.Length(32, 0)),
	)
	if err != nil {
		return errors.Wrap(err, ErrInvalidConfig.Category, ErrInvalidConfig.Message).
			WithTextCode(ErrInvalidConfig.TextCode).
			WithCode(ErrInvalidConfig.Code)
	}
	return nil
}

func (o Options) GetSessionCookieName() string   { return o.SessionCookieName }
func (o Options) GetContextCookieName() string   { return o.ContextCookieName }
func (o Options) GetCookieMaxAge() int           { return o.CookieMaxAge }
func (o Options) GetCookieSecureMode() string    { return o.CookieSecureMode }
func (o Options) GetCookieHost() string          { return o.CookieHost }
func (o Options) GetTrustForwardedHeaders() bool { return o.TrustForwarded }
func (o Options) GetJWTSecret() string           { return o.JWTSecret }
func (o Options) GetStorageKeyPrefix() string    { return o.StorageKeyPrefix }
func (o Options) GetLoginPath() string           { return o.LoginPath }
func (o Options) GetAdminLoginPath() string      { return o.AdminLoginPath }
func (o Options) GetDashboardPath() string       { return o.DashboardPath }
func (o Options) GetOnboardingPath() string      { return o.OnboardingPath }
func (o Options) GetFlowType() string            { return o.FlowType }
