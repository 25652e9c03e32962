package middleware

import (
	"context"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

type claimsKey struct{}

// ClaimsFromContext returns the ticket claims stored by RequireTicket.
func ClaimsFromContext(ctx context.Context) (*goGuard.TicketClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*goGuard.TicketClaims)
	return claims, ok && claims != nil
}

// RequireTicket admits requests carrying "Authorization: Bearer <ticket>"
// with a ticket the engine issued and that has not expired. Everything else
// gets 401 with a WWW-Authenticate challenge. The scheme is case-insensitive.
func RequireTicket(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r.Header.Get("Authorization"))
			if engine == nil || raw == "" {
				deny(w, "")
				return
			}
			claims, err := engine.ParseTicket(raw)
			if err != nil {
				deny(w, "invalid_token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func deny(w http.ResponseWriter, reason string) {
	challenge := `Bearer realm="goguard"`
	if reason != "" {
		challenge += `, error="` + reason + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
