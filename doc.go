// Package goGuard is an authentication and verification engine for
// username/password accounts that are bound to known source addresses and
// verified by emailed one-time codes.
//
// An [Engine] is assembled with a [Builder] and runs four workflows against a
// caller-owned [Session]:
//
//   - Login: password check with a per-session lockout. A correct password
//     from an address not on record stops at LoginIPConfirmationRequired.
//   - IP confirmation: the emailed code adds the new address to the account.
//   - Registration: username and email policy, emailed code, password policy.
//   - Password reset: emailed code to the address on record, then a new password.
//
// Engine methods are safe to call from multiple goroutines. Calls on one
// Session are serialized; different sessions never share state.
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// [Session] and value types (LoginResult, ChallengeInfo, MetricsSnapshot).
// Code generation, the lockout guard, the resend timer, credential checks and
// audit dispatch live under internal/ and are never exported. Persistence is
// behind [UserStore] (package userstore), delivery behind [Notifier]
// (package notify) and address lookup behind [IPResolver] (package ipresolve).
//
// # What this package must NOT do
//
//   - Reveal a verification code through any return value, error or log line.
//   - Touch the user store while a session is banned.
//   - Persist anything except through UserStore.
//   - Import any sub-package that re-imports goGuard (no import cycles).
//
// # Errors
//
// Failures are sentinel errors, optionally wrapped in [ValidationError],
// [AttemptsError], [BanError] or [CooldownError]. Use errors.Is for the
// sentinel and [KindOf], [RetryAfter] and [AttemptsLeft] for presentation.
package goGuard
