package middleware

import (
	"net/http"

	"github.com/MrEthical07/goGuard/ipresolve"
)

// ClientIP attaches the client address to the request context. With
// trustProxy, X-Forwarded-For and X-Real-IP win over the socket peer; only
// enable it behind a proxy that overwrites those headers.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := ipresolve.FromRequest(r, trustProxy); ip != "" {
				r = r.WithContext(ipresolve.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}
