// Package password turns plaintext passwords into one-way digests and checks
// candidates against stored digests.
//
// Two [Hasher] implementations are provided:
//
//   - [SHA256]: hex-encoded SHA-256 of the raw password bytes. Deterministic,
//     and compatible with record stores that already hold such digests.
//   - [Argon2]: salted Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Comparisons are constant-time. Password policy (length, character classes)
// lives in package validate, not here.
//
// This package must not store passwords, log them, or import any other
// goGuard package.
package password
