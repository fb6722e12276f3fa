// Package gotrue is a client for GoTrue-compatible auth services, the
// identity provider behind the café dashboard. It implements
// auth.IdentityProvider: every successful sign-in, refresh or sign-out is
// persisted to the client's token cache and emitted on its auth stream.
//
// That cache and stream belong to one signed-in user. A server handling
// many users sets Config.Stateless, which turns both off; each request's
// session then lives only in its cookie.
package gotrue
