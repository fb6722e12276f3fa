package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
)

// SessionVerifier checks that a session read from an untrusted store was
// issued by the provider. Implementations return a session whose identity
// claims come from the verified token, never from the stored body.
type SessionVerifier interface {
	VerifySession(ctx context.Context, session *Session) (*Session, error)
}

// AccessTokenClaims is the claim set the provider signs into access tokens.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// JWTVerifier verifies HS256 access tokens with the provider's JWT secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// JWTVerifierOption customizes a JWTVerifier.
type JWTVerifierOption func(*JWTVerifier)

// WithJWTVerifierClock overrides the clock used for exp checks.
func WithJWTVerifierClock(now func() time.Time) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithJWTVerifierLeeway allows for clock skew between provider and server.
func WithJWTVerifierLeeway(leeway time.Duration) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.leeway = leeway
	}
}

func NewJWTVerifier(secret string, opts ...JWTVerifierOption) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrVerifierRequired
	}

	v := &JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifySession validates the access token signature and exp, checks that
// sub matches the stored user and rebuilds the identity from the claims.
func (v *JWTVerifier) VerifySession(ctx context.Context, session *Session) (*Session, error) {
	if !session.Valid() {
		return nil, ErrNoSession
	}

	claims, err := v.Parse(session.AccessToken)
	if err != nil {
		return nil, err
	}

	if claims.Subject != session.User.ID {
		return nil, wrapProviderError(ErrInvalidSession, "verify", fmt.Errorf("token subject %q does not match session user", claims.Subject))
	}

	verified := *session
	verified.User.Email = claims.Email
	verified.User.Phone = claims.Phone
	verified.User.UserMetadata = claims.UserMetadata
	verified.User.AppMetadata = claims.AppMetadata
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Unix()
	}

	return &verified, nil
}

// Parse validates a raw access token and returns its claims.
func (v *JWTVerifier) Parse(tokenString string) (*AccessTokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.leeway > 0 {
		parserOptions = append(parserOptions, jwt.WithLeeway(v.leeway))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrapProviderError(ErrSessionExpired, "verify", err)
		}
		return nil, wrapProviderError(ErrInvalidSession, "verify", err)
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
