// Package ipresolve answers "which public IP address is this client using".
//
// HTTP asks an external echo service and suits a desktop or CLI client that
// runs on the user's own machine. Context reads the address a server already
// extracted from the incoming request. Static always returns one address.
package ipresolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// ErrUnknown is returned when the address cannot be determined.
var ErrUnknown = errors.New("client ip unknown")

// DefaultURL is the ipify JSON endpoint.
const DefaultURL = "https://api.ipify.org?format=json"

// Resolver returns the caller's current public IP.
type Resolver interface {
	CurrentPublicIP(ctx context.Context) (string, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context) (string, error)

func (f Func) CurrentPublicIP(ctx context.Context) (string, error) { return f(ctx) }

// HTTP queries a JSON echo service of the form {"ip":"203.0.113.7"}.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP returns a resolver for url (DefaultURL when empty). A nil client
// gets a 5 second timeout.
func NewHTTP(url string, client *http.Client) *HTTP {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTP{url: url, client: client}
}

func (h *HTTP) CurrentPublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnknown, resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return normalize(body.IP)
}

// Static always reports the same address.
type Static string

func (s Static) CurrentPublicIP(context.Context) (string, error) {
	return normalize(string(s))
}

type clientIPContextKey struct{}

// WithClientIP attaches the client's address to ctx for Context to find.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIP returns the address attached by WithClientIP.
func ClientIP(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok && ip != ""
}

// Context resolves from the request context, falling back to Fallback (if
// set) when no address was attached.
type Context struct {
	Fallback Resolver
}

func (c Context) CurrentPublicIP(ctx context.Context) (string, error) {
	if ip, ok := ClientIP(ctx); ok {
		return normalize(ip)
	}
	if c.Fallback != nil {
		return c.Fallback.CurrentPublicIP(ctx)
	}
	return "", ErrUnknown
}

// FromRequest extracts the client address from r. With trustProxy the first
// X-Forwarded-For hop wins, then X-Real-IP, then the socket peer.
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, err := normalize(first); err == nil {
				return ip
			}
		}
		if ip, err := normalize(r.Header.Get("X-Real-IP")); err == nil {
			return ip
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if ip, err := normalize(r.RemoteAddr); err == nil {
		return ip
	}
	return ""
}

func normalize(raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q is not an ip address", ErrUnknown, raw)
	}
	return addr.Unmap().String(), nil
}
