package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/ipresolve"
)

// WithClientIP attaches the caller's address to ctx. An engine built with
// an ipresolve.Context resolver treats it as the login source address, and
// audit events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return ipresolve.WithClientIP(ctx, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ipresolve.ClientIP(ctx)
	return ip
}
