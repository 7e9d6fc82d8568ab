// Package middleware adapts deskauth.Engine to net/http.
//
// [Guard] reads the bearer token, calls Authenticate and stores the resulting
// identity in the request context. [RequireRole] runs after Guard and rejects
// callers whose role is not listed. [ClientInfo] records the caller's address
// and User-Agent so the engine can stamp them on tokens it issues.
//
// Rejections carry no detail: every authentication failure is a bare 401.
package middleware
