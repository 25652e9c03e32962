package goGuard

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ticket"
)

// Config holds every engine setting. It is copied at Build and never mutated afterwards.
type Config struct {
	Login        LoginConfig
	OTP          OTPConfig
	Registration RegistrationConfig
	Password     PasswordConfig
	Session      SessionConfig
	Ticket       TicketConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig bounds consecutive wrong-password attempts per session.
type LoginConfig struct {
	MaxAttempts int
	BanDuration time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig shapes verification and IP-confirmation codes.
type OTPConfig struct {
	// VerificationDigits is used for signup and password-reset codes.
	VerificationDigits   int
	IPConfirmationDigits int
	MaxAttempts          int
	ResendCooldown       time.Duration
	TickInterval         time.Duration
	// CodeTTL expires unused codes. 0 disables expiry.
	CodeTTL time.Duration
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

type RegistrationConfig struct {
	MaxUsernameLength   int
	MaxAccountsPerEmail int
	// AllowedEmailDomains restricts signup addresses. Empty allows any domain.
	AllowedEmailDomains []string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the digest. Argon2 parameters only apply to "argon2id".
type PasswordConfig struct {
	Algorithm   string
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// IdleTimeout closes registry sessions untouched for this long. 0 disables the sweep.
	IdleTimeout time.Duration
	// MaxSessions caps the registry. 0 is unlimited.
	MaxSessions int
}

/*
====================================
TICKET CONFIG
====================================
*/

type TicketConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Login: LoginConfig{
			MaxAttempts: 4,
			BanDuration: 15 * time.Second,
		},
		OTP: OTPConfig{
			VerificationDigits:   7,
			IPConfirmationDigits: 6,
			MaxAttempts:          3,
			ResendCooldown:       40 * time.Second,
			TickInterval:         time.Second,
			CodeTTL:              0,
		},
		Registration: RegistrationConfig{
			MaxUsernameLength:   20,
			MaxAccountsPerEmail: 5,
		},
		Password: PasswordConfig{
			Algorithm:   password.AlgorithmSHA256,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
			MaxSessions: 0,
		},
		Ticket: TicketConfig{
			Enabled:       false,
			TTL:           15 * time.Minute,
			SigningMethod: string(ticket.MethodEd25519),
			Issuer:        "goguard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Registration.AllowedEmailDomains = slices.Clone(cfg.Registration.AllowedEmailDomains)
	out.Ticket.PrivateKey = cloneBytes(cfg.Ticket.PrivateKey)
	out.Ticket.PublicKey = cloneBytes(cfg.Ticket.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Login
	if c.Login.MaxAttempts <= 0 {
		return errors.New("Login MaxAttempts must be > 0")
	}
	if c.Login.BanDuration <= 0 {
		return errors.New("Login BanDuration must be > 0")
	}

	// OTP
	if !validDigits(c.OTP.VerificationDigits) {
		return fmt.Errorf("OTP VerificationDigits must be between %d and %d", internal.MinOTPDigits, internal.MaxOTPDigits)
	}
	if !validDigits(c.OTP.IPConfirmationDigits) {
		return fmt.Errorf("OTP IPConfirmationDigits must be between %d and %d", internal.MinOTPDigits, internal.MaxOTPDigits)
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.ResendCooldown < 0 {
		return errors.New("OTP ResendCooldown must be >= 0")
	}
	if c.OTP.TickInterval <= 0 {
		return errors.New("OTP TickInterval must be > 0")
	}
	if c.OTP.ResendCooldown > 0 && c.OTP.ResendCooldown < c.OTP.TickInterval {
		return errors.New("OTP ResendCooldown must be >= TickInterval")
	}
	if c.OTP.CodeTTL < 0 {
		return errors.New("OTP CodeTTL must be >= 0")
	}

	// Registration
	if c.Registration.MaxUsernameLength < 0 {
		return errors.New("Registration MaxUsernameLength must be >= 0")
	}
	if c.Registration.MaxUsernameLength > 0 && c.Registration.MaxUsernameLength < 4 {
		return errors.New("Registration MaxUsernameLength must be >= 4 when set")
	}
	if c.Registration.MaxAccountsPerEmail <= 0 {
		return errors.New("Registration MaxAccountsPerEmail must be > 0")
	}
	for _, d := range c.Registration.AllowedEmailDomains {
		d = strings.TrimPrefix(strings.TrimSpace(d), "@")
		if d == "" || !strings.Contains(d, ".") {
			return fmt.Errorf("Registration AllowedEmailDomains entry %q is invalid", d)
		}
	}

	// Password
	switch strings.ToLower(c.Password.Algorithm) {
	case password.AlgorithmSHA256, "":
	case password.AlgorithmArgon2ID:
		if _, err := password.NewArgon2(c.Password.hasherConfig()); err != nil {
			return fmt.Errorf("Password: %w", err)
		}
	default:
		return fmt.Errorf("Password Algorithm %q is unsupported", c.Password.Algorithm)
	}

	// Session
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.MaxSessions < 0 {
		return errors.New("Session MaxSessions must be >= 0")
	}

	// Ticket
	if c.Ticket.Enabled {
		if c.Ticket.TTL <= 0 {
			return errors.New("Ticket TTL must be > 0")
		}
		switch strings.ToLower(c.Ticket.SigningMethod) {
		case string(ticket.MethodEd25519):
			if len(c.Ticket.PrivateKey) == 0 || len(c.Ticket.PublicKey) == 0 {
				return errors.New("ed25519 tickets require PrivateKey and PublicKey")
			}
		case string(ticket.MethodHS256):
			if len(c.Ticket.PrivateKey) < 32 {
				return errors.New("hs256 tickets require a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported Ticket signing method")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func validDigits(n int) bool {
	return n >= internal.MinOTPDigits && n <= internal.MaxOTPDigits
}
