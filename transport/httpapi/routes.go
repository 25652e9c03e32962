package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/ipresolve"
	"github.com/MrEthical07/goGuard/middleware"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type codeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type identityRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ip, _ := ipresolve.ClientIP(r.Context())
	if h.throttled(w, r, ip) {
		return
	}

	res, err := h.engine.Login(r.Context(), s, req.Username, req.Password)
	h.recordLogin(r, ip, err)
	if err = h.ticketOptional(r, err); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (h *Handler) confirmIP(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.RequestIPConfirmation(r.Context(), s, req.Username, req.Code)
	if ip, ok := ipresolve.ClientIP(r.Context()); ok {
		h.recordLogin(r, ip, err)
	}
	if err = h.ticketOptional(r, err); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (h *Handler) registerStart(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.RegisterStart(r.Context(), s, req.Username, req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, r, s, http.StatusOK)
}

func (h *Handler) registerOTP(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.engine.RegisterRequestOTP(r.Context(), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChallengeResponse(info))
}

func (h *Handler) registerVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.RegisterVerifyOTP(r.Context(), s, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, r, s, http.StatusOK)
}

func (h *Handler) registerFinish(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.RegisterFinish(r.Context(), s, req.Password, req.Confirm)
	if err = h.ticketOptional(r, err); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registrationResponse{
		Username: res.Username,
		Email:    res.Email,
		Ticket:   res.Ticket,
	})
}

func (h *Handler) resetRequest(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.engine.ResetRequest(r.Context(), s, req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChallengeResponse(info))
}

func (h *Handler) resetVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.engine.ResetVerifyOTP(r.Context(), s, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, r, s, http.StatusOK)
}

func (h *Handler) resetFinish(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.ResetFinish(r.Context(), s, req.Password, req.Confirm)
	if err = h.ticketOptional(r, err); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Username: res.Username, Ticket: res.Ticket})
}

func (h *Handler) sessionState(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, r, s, http.StatusOK)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.existingSession(r); ok {
		if err := h.engine.CloseSession(r.Context(), s.ID()); err != nil && !errors.Is(err, goGuard.ErrSessionNotFound) {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.sessions.Destroy(r.Context()); err != nil {
		h.logger.Warn("httpapi: destroy cookie session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Username: claims.Username(),
		Session:  claims.SID,
		Via:      claims.Via,
	})
}

// throttled renders a lockout when ip has used its failed-login budget.
// Throttle failures are logged and let the request through.
func (h *Handler) throttled(w http.ResponseWriter, r *http.Request, ip string) bool {
	if h.throttle == nil || ip == "" {
		return false
	}
	wait, err := h.throttle.Check(r.Context(), ip)
	if err == nil {
		return false
	}
	if !errors.Is(err, rate.ErrRateLimited) {
		h.logger.WarnContext(r.Context(), "httpapi: login throttle unavailable", "error", err)
		return false
	}
	secs := seconds(wait)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Kind:       goGuard.KindLockout.String(),
		Error:      "too many failed logins from this address",
		RetryAfter: &secs,
	})
	return true
}

func (h *Handler) recordLogin(r *http.Request, ip string, err error) {
	if h.throttle == nil || ip == "" {
		return
	}
	var terr error
	switch {
	case err == nil, errors.Is(err, goGuard.ErrTicketUnavailable):
		terr = h.throttle.Reset(r.Context(), ip)
	case errors.Is(err, goGuard.ErrWrongPassword):
		terr = h.throttle.Fail(r.Context(), ip)
	}
	if terr != nil {
		h.logger.WarnContext(r.Context(), "httpapi: login throttle unavailable", "error", terr)
	}
}

func (h *Handler) writeState(w http.ResponseWriter, r *http.Request, s *goGuard.Session, status int) {
	st, err := s.State()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, newStateResponse(st))
}

// ticketOptional downgrades a ticket signing failure to a log line: the
// workflow itself has already succeeded.
func (h *Handler) ticketOptional(r *http.Request, err error) error {
	if err != nil && errors.Is(err, goGuard.ErrTicketUnavailable) {
		h.logger.WarnContext(r.Context(), "httpapi: ticket not issued", "error", err)
		return nil
	}
	return err
}
