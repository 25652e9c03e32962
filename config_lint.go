package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ticket"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	}
	return "INFO"
}

// LintWarning is an advisory finding. A config with warnings still builds.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above min into one error, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	ws := r.BySeverity(min)
	if len(ws) == 0 {
		return nil
	}
	msgs := make([]string, len(ws))
	for i, w := range ws {
		msgs[i] = w.Severity.String() + " " + w.Code + ": " + w.Message
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint flags settings that are valid but weak or surprising.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	algo := strings.ToLower(c.Password.Algorithm)
	if algo == "" || algo == password.AlgorithmSHA256 {
		add("unsalted_digest", LintWarn, "sha256 digests are unsalted; prefer argon2id for new deployments")
	}
	if algo == password.AlgorithmArgon2ID && c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory below 64 MB")
	}
	if c.Login.MaxAttempts > 10 {
		add("login_attempts_high", LintWarn, "more than 10 attempts per ban window")
	}
	if c.Login.BanDuration < 5*time.Second {
		add("ban_short", LintWarn, "ban shorter than 5s barely slows guessing")
	}
	if c.OTP.MaxAttempts > 5 {
		add("otp_attempts_high", LintHigh, "more than 5 guesses per code weakens short codes")
	}
	if c.OTP.ResendCooldown == 0 {
		add("resend_cooldown_disabled", LintWarn, "codes can be requested without throttling")
	}
	if c.OTP.CodeTTL == 0 {
		add("code_ttl_disabled", LintInfo, "codes stay valid until used or discarded")
	}
	if len(c.Registration.AllowedEmailDomains) == 0 {
		add("email_domains_open", LintInfo, "registration accepts any email domain")
	}
	if c.Ticket.Enabled && strings.ToLower(c.Ticket.SigningMethod) == string(ticket.MethodHS256) {
		add("ticket_hs256", LintInfo, "hs256 tickets share one secret between issuer and verifiers")
	}
	if c.Ticket.Enabled && c.Ticket.TTL > 24*time.Hour {
		add("ticket_ttl_long", LintWarn, "tickets live longer than a day")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "no audit trail is kept")
	}
	if c.Session.IdleTimeout == 0 {
		add("session_sweep_disabled", LintWarn, "abandoned sessions are never swept from the registry")
	}
	return ws
}
