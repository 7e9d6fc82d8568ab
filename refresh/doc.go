// Package refresh manages long-lived opaque refresh tokens and their rotation families.
//
// # Token lifecycle
//
// A login opens a new family. Every successful [Manager.ValidateAndRotate]
// revokes the presented token (reason "rotated") and inserts its replacement in
// the same family, in a single store transaction. Only the sha256 digest of a
// token is ever persisted or queried.
//
// Presenting a token that is already revoked means some party still holds an
// old link of the lineage. The manager treats that as theft and revokes the
// whole family, so both the attacker and the victim must log in again.
//
// # Store contract
//
// [Store.Rotate] must fail with [ErrConflict] when the old token is no longer
// active at write time. That is what keeps two concurrent rotations of the same
// token from both succeeding.
package refresh
