// Package audit runs the engine's side effects off the request path.
//
// Audit events, reset-mail delivery and last-login tracking are queued on a
// [Dispatcher] and executed by a single background worker. A failing or slow
// side effect is logged and never changes an authentication result.
package audit
