// Package middleware holds the HTTP adapters that sit in front of goGuard
// handlers.
//
//   - [ClientIP] attaches the request's source address for
//     ipresolve.Context to find.
//   - [RequireTicket] admits requests carrying a valid login ticket in the
//     Authorization header and injects its claims into the context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Ticket checks are
// delegated to Engine.ParseTicket.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly.
//   - Open, read or close engine sessions.
//   - Decide anything beyond pass or reject.
package middleware
