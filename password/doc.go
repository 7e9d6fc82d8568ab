// Package password hashes and verifies account passwords.
//
// [Bcrypt] is the default scheme (cost 10). [Argon2] produces PHC-encoded
// argon2id hashes for deployments that opt in. [Multi] verifies against
// whichever scheme produced a stored hash, so both can coexist in the users
// table while hashes are upgraded on login.
//
// Password policy (minimum length, complexity) is enforced by the engine, not here.
package password
