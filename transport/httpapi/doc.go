// Package httpapi exposes the login, registration, password reset and IP
// confirmation workflows as a JSON HTTP API.
//
// Routes are served by a gorilla/mux router. Each browser gets a cookie
// session (alexedwards/scs) that holds the ID of its goGuard.Session; a
// missing or expired engine session is reopened transparently, so lockout
// and challenge state follow the cookie.
//
//	POST   /login               {username, password}
//	POST   /login/confirm-ip    {username, code}
//	POST   /register/start      {username, email}
//	POST   /register/otp
//	POST   /register/verify     {code}
//	POST   /register/finish     {password, confirm}
//	POST   /reset/request       {username}
//	POST   /reset/verify        {code}
//	POST   /reset/finish        {password, confirm}
//	GET    /session
//	DELETE /session
//	GET    /me                  Authorization: Bearer <ticket>
//
// Failures render as {"kind", "error", "attempts_left", "retry_after"} with a
// status chosen by goGuard.KindOf.
//
// # What this package must NOT do
//
//   - Make workflow decisions; every rule lives in the engine.
//   - Echo codes, digests or collaborator error details to the client.
package httpapi
