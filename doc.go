// Package deskauth is the authentication and session-credential core of the
// service desk backend.
//
// An [Engine] verifies passwords and second factors, mints short-lived JWT
// access tokens, rotates opaque refresh tokens within theft-detecting
// families, keeps the access-token blacklist and runs single-use password
// resets. Build one with [New]:
//
//	engine, err := deskauth.New().
//		WithConfig(cfg).
//		WithStore(pg).
//		WithLogger(logger).
//		Build()
//
// Engine methods are safe for concurrent use. Storage lives behind the
// [UserStore], refresh.Store, revocation.Store and reset.Store interfaces;
// store/postgres implements all four.
//
// # Errors
//
// Credential failures always surface as [ErrInvalidCredentials] or
// [ErrInvalidSecondFactor], whichever check failed internally. Storage and
// crypto failures are logged and surface as [ErrInternal]. A login that still
// needs a one-time code is not an error: [LoginResult.RequiresTwoFactor] is set
// and no tokens are issued.
package deskauth
