// Package jwt issues and parses the signed access tokens handed to clients.
//
// Every token carries subject, username, role, email, iat, exp and a fresh
// jti. The jti is the key used by the revocation registry, so [Manager.Issue]
// returns it alongside the token and its expiry.
//
// HS256 is the default signing method; Ed25519 is available for deployments
// that verify tokens outside this service.
package jwt
