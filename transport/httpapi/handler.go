package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// sessionKey is the scs key holding the engine session ID.
const sessionKey = "goguard.session_id"

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 4 << 10

type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// Sessions stores the cookie sessions. A nil manager gets scs.New() with
	// an in-memory store.
	Sessions *scs.SessionManager
	Logger   *slog.Logger
	// Throttle, when set, limits failed logins per client address across
	// every cookie session.
	Throttle LoginThrottle
}

// LoginThrottle counts failed logins per key. A blocked key makes Check
// return rate.ErrRateLimited with the time left; *rate.Limiter implements it.
type LoginThrottle interface {
	Check(ctx context.Context, key string) (time.Duration, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Handler serves the API. Build it with New.
type Handler struct {
	engine   *goGuard.Engine
	sessions *scs.SessionManager
	logger   *slog.Logger
	throttle LoginThrottle
	root     http.Handler
}

func New(engine *goGuard.Engine, opts Options) *Handler {
	h := &Handler{
		engine:   engine,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		throttle: opts.Throttle,
	}
	if h.sessions == nil {
		h.sessions = scs.New()
		h.sessions.Cookie.Name = "goguard"
		h.sessions.Cookie.HttpOnly = true
		h.sessions.Cookie.SameSite = http.SameSiteLaxMode
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := mux.NewRouter()
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/login/confirm-ip", h.confirmIP).Methods(http.MethodPost)
	r.HandleFunc("/register/start", h.registerStart).Methods(http.MethodPost)
	r.HandleFunc("/register/otp", h.registerOTP).Methods(http.MethodPost)
	r.HandleFunc("/register/verify", h.registerVerify).Methods(http.MethodPost)
	r.HandleFunc("/register/finish", h.registerFinish).Methods(http.MethodPost)
	r.HandleFunc("/reset/request", h.resetRequest).Methods(http.MethodPost)
	r.HandleFunc("/reset/verify", h.resetVerify).Methods(http.MethodPost)
	r.HandleFunc("/reset/finish", h.resetFinish).Methods(http.MethodPost)
	r.HandleFunc("/session", h.sessionState).Methods(http.MethodGet)
	r.HandleFunc("/session", h.closeSession).Methods(http.MethodDelete)
	r.Handle("/me", middleware.RequireTicket(engine)(http.HandlerFunc(h.me))).Methods(http.MethodGet)

	h.root = h.sessions.LoadAndSave(middleware.ClientIP(opts.TrustProxy)(r))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// session returns the engine session bound to the cookie, opening a new one
// when there is none or it has expired.
func (h *Handler) session(r *http.Request) (*goGuard.Session, error) {
	ctx := r.Context()
	if id := h.sessions.GetString(ctx, sessionKey); id != "" {
		s, err := h.engine.Session(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, goGuard.ErrSessionNotFound) {
			return nil, err
		}
	}

	s, err := h.engine.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	h.sessions.Put(ctx, sessionKey, s.ID())
	return s, nil
}

// existingSession returns the bound session without opening one.
func (h *Handler) existingSession(r *http.Request) (*goGuard.Session, bool) {
	id := h.sessions.GetString(r.Context(), sessionKey)
	if id == "" {
		return nil, false
	}
	s, err := h.engine.Session(r.Context(), id)
	return s, err == nil
}
