// Package internal holds the small helpers shared by goGuard's private
// packages: numeric code generation and constant-time code comparison.
//
// # Sub-packages
//
//   - appconfig: goguard-server TOML and flag configuration
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - credential: username, password and source address check
//   - fsm: table-driven workflow state machines
//   - lockout: per-session wrong-password guard
//   - otp: per-session verification code challenges
//   - rate: Redis-backed failed-login throttle per client address
//   - resend: resend cooldown countdown
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
