// Package httpapi exposes a goIdentity.Engine over HTTP with a chi router.
//
//	POST /auth/register                {email,password,name} -> 201 {user} + session cookie
//	POST /auth/login                   {email,password}      -> 200 {user} + session cookie
//	POST /auth/logout                                        -> 200, cookie cleared
//	GET  /auth/session                                       -> 200 {authenticated, user?}
//	GET  /auth/oauth/{provider}                              -> 302 to the provider
//	GET  /auth/oauth/{provider}/callback                     -> 302 to the app or login?error=
//	POST /auth/request-reset           {email}               -> 200, same body for every email
//	POST /auth/reset                   {token,password}      -> 200 | 400
//	GET  /healthz, GET /metrics
//
// Request bodies are JSON, at most 64 KiB, and may not carry unknown fields.
// Every route except /healthz and /metrics runs behind middleware.Guard.
package httpapi
