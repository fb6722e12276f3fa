package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the provider's token pair plus the identity it was issued to.
// JSON field names follow the provider's session payload so a stored value
// can be handed back to the provider client unchanged.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresIn    int      `json:"expires_in,omitempty"`
	ExpiresAt    int64    `json:"expires_at,omitempty"`
	User         Identity `json:"user"`
}

// Identity is the user record embedded in a Session.
type Identity struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
}

// Valid reports whether the session carries enough to act on.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User.ID != ""
}

// Expiration returns the access token expiry, zero if unknown.
func (s *Session) Expiration() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Expired reports whether the access token expired at now. Sessions without
// an expiry never expire on the client side.
func (s *Session) Expired(now time.Time) bool {
	exp := s.Expiration()
	if exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}

// Role resolves the session's effective role. It is recomputed on every
// call so a refreshed session never serves a stale role.
func (s *Session) Role() (Role, bool) {
	if s == nil {
		return "", false
	}
	return s.User.Role()
}

func (s *Session) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"user=%s email=%s exp=%d access=%t refresh=%t",
		s.User.ID,
		s.User.Email,
		s.ExpiresAt,
		s.AccessToken != "",
		s.RefreshToken != "",
	)
}

// RoleClaims returns the role claim at each metadata location.
func (i Identity) RoleClaims() (user RoleClaim, app RoleClaim) {
	return roleClaimFrom(ClaimsSourceUser, i.UserMetadata), roleClaimFrom(ClaimsSourceApp, i.AppMetadata)
}

func (i Identity) Role() (Role, bool) {
	return ResolveRole(i.RoleClaims())
}

func (i Identity) IsAdmin() bool {
	return IsAdminClaims(i.RoleClaims())
}

func (i Identity) UUID() (uuid.UUID, error) {
	return uuid.Parse(i.ID)
}

// FullName reads the display name the sign-up form stores in user metadata.
func (i Identity) FullName() string {
	return metadataString(i.UserMetadata, "full_name", "name")
}

func (i Identity) AvatarURL() string {
	return metadataString(i.UserMetadata, "avatar_url", "picture")
}

func metadataString(metadata map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := metadata[key]; ok {
			if value, ok := raw.(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}

// EncodeSession serializes the full session structure.
func EncodeSession(s *Session) (string, error) {
	if s == nil {
		return "", ErrNoSession
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeSession parses a stored session. Anything that does not decode
// into a usable session reads as no session.
func DecodeSession(raw string) (*Session, bool) {
	if raw == "" {
		return nil, false
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false
	}

	if !s.Valid() {
		return nil, false
	}

	return &s, true
}
