// Package rate counts failed logins per client address in Redis, across
// every session of every client.
//
// # Window semantics
//
// Fixed-window counters kept by Lua scripts: INCR, with PEXPIRE on the first
// hit, so later failures never extend the window. Keys are
// <prefix>:lf:<key>. Once a key has MaxFailures failures, Check refuses it
// until the window expires.
//
// # What this package must NOT do
//
//   - Know about users, sessions or workflows; callers choose the key.
//   - Be imported outside the goGuard module.
package rate
