package auth

import (
	"net/url"

	"golang.org/x/oauth2"
)

// PKCEMethod is the challenge method the provider expects.
const PKCEMethod = "s256"

const codeVerifierSuffix = "-code-verifier"

// PKCEChallenge is one proof key pair for a code exchange.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCEChallenge generates a fresh verifier and its S256 challenge.
func NewPKCEChallenge() PKCEChallenge {
	verifier := oauth2.GenerateVerifier()
	return PKCEChallenge{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    PKCEMethod,
	}
}

// Apply adds the challenge parameters to an authorize request query.
func (c PKCEChallenge) Apply(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	q.Set("code_challenge", c.Challenge)
	q.Set("code_challenge_method", c.Method)
	return q
}

// SaveCodeVerifier stores the verifier next to the session key so the
// callback handler can complete the exchange.
func SaveCodeVerifier(storage Storage, sessionKey, verifier string) error {
	return storage.Set(sessionKey+codeVerifierSuffix, verifier)
}

// TakeCodeVerifier returns the stored verifier and removes it. A verifier
// is good for exactly one exchange.
func TakeCodeVerifier(storage Storage, sessionKey string) (string, bool) {
	key := sessionKey + codeVerifierSuffix
	verifier, ok := storage.Get(key)
	if !ok || verifier == "" {
		return "", false
	}
	_ = storage.Remove(key)
	return verifier, true
}
