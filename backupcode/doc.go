// Package backupcode generates, hashes and verifies one-time recovery codes.
//
// Stored batches are either bcrypt hashes or, for accounts enrolled before
// hashing was introduced, plaintext codes. [IsHashed] tells the two apart by
// the bcrypt "$2" prefix so legacy batches keep working until they are
// rewritten in hashed form on their first successful use.
package backupcode
