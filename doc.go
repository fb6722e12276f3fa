// Package auth keeps the café platform's session state in step with the
// identity provider and decides who may enter which part of the app.
//
// Session lifecycle:
//   - The provider owns the session. SessionStore mirrors it into a medium
//     (request cookies via CookieStorage, or MemoryStorage) and reads
//     anything it cannot decode as "no session".
//   - Cookies are scoped to the parent domain when the host has at least
//     three labels so sibling subdomains share the session. Options.CookieHost
//     pins that host when the router does not expose Host as a header.
//
// Two deployments:
//   - Single principal (a kiosk, a CLI, a worker acting as one user): one
//     provider client caches the session and streams events, and a
//     Dispatcher fans them out to SessionTracker, MirrorToStore and
//     ProfileSync.
//   - Server: RouteAuthenticator serves many users from one process. The
//     session lives only in each request's cookie, its access token is
//     checked by a SessionVerifier on every request, and the provider
//     client must run stateless (gotrue.Config.Stateless) so no user's
//     tokens or events leak into another's request.
//
// Auth events:
//   - Dispatcher holds the single subscription to the provider's event
//     stream and fans events out to listeners in registration order. A
//     failing listener is logged and skipped.
//   - SessionTracker follows the latest session by event order so a slow
//     lookup never overwrites a newer sign-in or sign-out.
//
// Side effects:
//   - ProfileSync upserts a profile row on every SIGNED_IN. Failures are
//     logged and never reach the sign-in flow.
//   - ActivityListener forwards auth events to an ActivitySink.
//
// Access:
//   - ResolveRole reads the role from user and app metadata. Admin is
//     granted when either location says so. On the server path both come
//     from the verified access token, never from the cookie body.
//   - Evaluate turns a GuardPolicy and what is known about the request into
//     an AccessDecision. RouteAuthenticator.Guard applies it as go-router
//     middleware.
package auth
