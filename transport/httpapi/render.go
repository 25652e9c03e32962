package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

type loginResponse struct {
	Status    string             `json:"status"`
	Username  string             `json:"username"`
	Ticket    string             `json:"ticket,omitempty"`
	Challenge *challengeResponse `json:"challenge,omitempty"`
}

type challengeResponse struct {
	Purpose      string     `json:"purpose"`
	Email        string     `json:"email"`
	AttemptsLeft int        `json:"attempts_left"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ResendAfter  int        `json:"resend_after"`
}

type registrationResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Ticket   string `json:"ticket,omitempty"`
}

type resetResponse struct {
	Username string `json:"username"`
	Ticket   string `json:"ticket,omitempty"`
}

type stateResponse struct {
	Login                string   `json:"login"`
	Registration         string   `json:"registration"`
	Reset                string   `json:"reset"`
	AttemptsLeft         int      `json:"attempts_left"`
	BanRemaining         int      `json:"ban_remaining"`
	ResendRemaining      int      `json:"resend_remaining"`
	PendingConfirmations []string `json:"pending_confirmations"`
}

type meResponse struct {
	Username string `json:"username"`
	Session  string `json:"session"`
	Via      string `json:"via"`
}

type errorResponse struct {
	Kind         string `json:"kind"`
	Error        string `json:"error"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
	RetryAfter   *int   `json:"retry_after,omitempty"`
}

func newLoginResponse(res goGuard.LoginResult) loginResponse {
	out := loginResponse{
		Status:   res.Status.String(),
		Username: res.Username,
		Ticket:   res.Ticket,
	}
	if res.Challenge != nil {
		c := newChallengeResponse(*res.Challenge)
		out.Challenge = &c
	}
	return out
}

func newChallengeResponse(info goGuard.ChallengeInfo) challengeResponse {
	out := challengeResponse{
		Purpose:      info.Purpose,
		Email:        info.Email,
		AttemptsLeft: info.AttemptsLeft,
		ResendAfter:  seconds(info.ResendAfter),
	}
	if !info.ExpiresAt.IsZero() {
		at := info.ExpiresAt.UTC()
		out.ExpiresAt = &at
	}
	return out
}

func newStateResponse(st goGuard.SessionState) stateResponse {
	pending := st.PendingConfirmations
	if pending == nil {
		pending = []string{}
	}
	return stateResponse{
		Login:                string(st.Login),
		Registration:         string(st.Registration),
		Reset:                string(st.Reset),
		AttemptsLeft:         st.AttemptsLeft,
		BanRemaining:         seconds(st.BanRemaining),
		ResendRemaining:      seconds(st.ResendRemaining),
		PendingConfirmations: pending,
	}
}

// seconds rounds d up to whole seconds.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func statusFor(kind goGuard.ErrorKind) int {
	switch kind {
	case goGuard.KindValidation:
		return http.StatusBadRequest
	case goGuard.KindAuth:
		return http.StatusUnauthorized
	case goGuard.KindChallenge:
		return http.StatusUnprocessableEntity
	case goGuard.KindLockout:
		return http.StatusTooManyRequests
	case goGuard.KindWorkflow:
		return http.StatusConflict
	case goGuard.KindCollaborator:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail renders err. Collaborator and unclassified errors are logged and
// reported without their detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := goGuard.KindOf(err)
	body := errorResponse{Kind: kind.String(), Error: err.Error()}

	switch kind {
	case goGuard.KindCollaborator:
		h.logger.ErrorContext(r.Context(), "httpapi: collaborator failure", "path", r.URL.Path, "error", err)
		body.Error = "service temporarily unavailable"
	case goGuard.KindUnknown:
		h.logger.ErrorContext(r.Context(), "httpapi: unexpected error", "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}

	if n, ok := goGuard.AttemptsLeft(err); ok {
		body.AttemptsLeft = &n
	}
	if d, ok := goGuard.RetryAfter(err); ok {
		secs := seconds(d)
		body.RetryAfter = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, statusFor(kind), body)
}

var errMalformedBody = errors.New("malformed request body")

// decode reads a JSON body into dst, rendering a validation error on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:  goGuard.KindValidation.String(),
			Error: errMalformedBody.Error(),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
