// Package appconfig loads the goguard-server configuration.
//
// Settings come from built-in defaults, then an optional TOML file, then
// command-line flags. A flag only overrides the file when it is given
// explicitly.
//
//	[server]
//	addr = ":8080"
//	trust_proxy = false
//	login_throttle = 20         # failed logins per address; needs a Redis backend
//	throttle_window = "15m"
//
//	[store]
//	backend = "sqlite"          # memory | miniredis | redis | postgres | sqlite
//	dsn = "goguard.db"
//
//	[engine]
//	max_login_attempts = 4
//	ban_duration = "15s"
package appconfig

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/notify"
)

// =============================================================================
// FILE STRUCTURE
// =============================================================================

// File is the complete server configuration.
type File struct {
	Server   ServerSection   `toml:"server"`
	Store    StoreSection    `toml:"store"`
	Notifier NotifierSection `toml:"notifier"`
	Engine   EngineSection   `toml:"engine"`
}

type ServerSection struct {
	Addr            string        `toml:"addr"`
	TrustProxy      bool          `toml:"trust_proxy"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	// MetricsPath serves Prometheus text exposition. Empty disables it.
	MetricsPath string `toml:"metrics_path"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	// LoginThrottle caps failed logins per client address per ThrottleWindow
	// across all sessions. It is kept in Redis; 0 disables it.
	LoginThrottle  int           `toml:"login_throttle"`
	ThrottleWindow time.Duration `toml:"throttle_window"`
}

type StoreSection struct {
	Backend     string `toml:"backend"`
	DSN         string `toml:"dsn"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
	// UsernameCacheTTL caches the username list. 0 disables the cache.
	UsernameCacheTTL time.Duration `toml:"username_cache_ttl"`
}

type NotifierSection struct {
	Kind         string        `toml:"kind"`
	SMTPHost     string        `toml:"smtp_host"`
	SMTPPort     int           `toml:"smtp_port"`
	SMTPUsername string        `toml:"smtp_username"`
	SMTPPassword string        `toml:"smtp_password"`
	From         string        `toml:"from"`
	FromName     string        `toml:"from_name"`
	Timeout      time.Duration `toml:"timeout"`
}

type EngineSection struct {
	MaxLoginAttempts     int           `toml:"max_login_attempts"`
	BanDuration          time.Duration `toml:"ban_duration"`
	VerificationDigits   int           `toml:"verification_digits"`
	IPConfirmationDigits int           `toml:"ip_confirmation_digits"`
	OTPMaxAttempts       int           `toml:"otp_max_attempts"`
	ResendCooldown       time.Duration `toml:"resend_cooldown"`
	CodeTTL              time.Duration `toml:"code_ttl"`
	MaxUsernameLength    int           `toml:"max_username_length"`
	MaxAccountsPerEmail  int           `toml:"max_accounts_per_email"`
	AllowedEmailDomains  []string      `toml:"allowed_email_domains"`
	PasswordAlgorithm    string        `toml:"password_algorithm"`
	SessionIdleTimeout   time.Duration `toml:"session_idle_timeout"`
	MaxSessions          int           `toml:"max_sessions"`
	TicketsEnabled       bool          `toml:"tickets_enabled"`
	TicketSecret         string        `toml:"ticket_secret"`
	TicketTTL            time.Duration `toml:"ticket_ttl"`
	Audit                bool          `toml:"audit"`
	Metrics              bool          `toml:"metrics"`
}

// Backends accepted in [store] backend.
const (
	BackendMemory    = "memory"
	BackendMiniredis = "miniredis"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
)

// Notifier kinds accepted in [notifier] kind.
const (
	NotifierLog  = "log"
	NotifierSMTP = "smtp"
)

var (
	backends  = []string{BackendMemory, BackendMiniredis, BackendRedis, BackendPostgres, BackendSQLite}
	notifiers = []string{NotifierLog, NotifierSMTP}
)

// Default mirrors goGuard.DefaultConfig with an in-memory store and codes
// written to the log.
func Default() File {
	eng := goGuard.DefaultConfig()
	smtp := notify.DefaultSMTPConfig()
	return File{
		Server: ServerSection{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MetricsPath:     "/metrics",
			LogLevel:        "info",
			LogFormat:       "text",
			ThrottleWindow:  15 * time.Minute,
		},
		Store: StoreSection{
			Backend:          BackendMemory,
			RedisPrefix:      "goguard",
			UsernameCacheTTL: time.Minute,
		},
		Notifier: NotifierSection{
			Kind:     NotifierLog,
			SMTPHost: smtp.Host,
			SMTPPort: smtp.Port,
			Timeout:  smtp.Timeout,
		},
		Engine: EngineSection{
			MaxLoginAttempts:     eng.Login.MaxAttempts,
			BanDuration:          eng.Login.BanDuration,
			VerificationDigits:   eng.OTP.VerificationDigits,
			IPConfirmationDigits: eng.OTP.IPConfirmationDigits,
			OTPMaxAttempts:       eng.OTP.MaxAttempts,
			ResendCooldown:       eng.OTP.ResendCooldown,
			CodeTTL:              eng.OTP.CodeTTL,
			MaxUsernameLength:    eng.Registration.MaxUsernameLength,
			MaxAccountsPerEmail:  eng.Registration.MaxAccountsPerEmail,
			PasswordAlgorithm:    eng.Password.Algorithm,
			SessionIdleTimeout:   eng.Session.IdleTimeout,
			MaxSessions:          eng.Session.MaxSessions,
			TicketTTL:            eng.Ticket.TTL,
			Metrics:              true,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Decode reads TOML from r over the defaults. Unknown keys are an error so
// typos do not pass silently.
func Decode(r io.Reader) (File, error) {
	f := Default()
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return File{}, fmt.Errorf("appconfig: decode: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return File{}, fmt.Errorf("appconfig: unknown keys: %s", strings.Join(keys, ", "))
	}
	return f, nil
}

// LoadFile reads a TOML file over the defaults.
func LoadFile(path string) (File, error) {
	f := Default()
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, fmt.Errorf("appconfig: load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return File{}, fmt.Errorf("appconfig: %s: unknown key %s", path, undecoded[0])
	}
	return f, nil
}

// Parse builds a File from command-line args: defaults, then -config, then
// every flag given explicitly.
//
//	-config string   TOML file
//	-addr string     listen address
//	-store string    memory | miniredis | redis | postgres | sqlite
//	-dsn string      SQL data source name
//	-redis string    Redis address
//	-notifier string log | smtp
//	-trust-proxy     take client IPs from X-Forwarded-For
//	-log-level string
func Parse(args []string) (File, error) {
	var (
		path     string
		override File
	)
	fs := flag.NewFlagSet("goguard-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "TOML config file")
	fs.StringVar(&override.Server.Addr, "addr", "", "listen address")
	fs.StringVar(&override.Store.Backend, "store", "", "user store backend")
	fs.StringVar(&override.Store.DSN, "dsn", "", "SQL data source name")
	fs.StringVar(&override.Store.RedisAddr, "redis", "", "Redis address")
	fs.StringVar(&override.Notifier.Kind, "notifier", "", "code delivery: log or smtp")
	fs.BoolVar(&override.Server.TrustProxy, "trust-proxy", false, "trust X-Forwarded-For")
	fs.StringVar(&override.Server.LogLevel, "log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return File{}, fmt.Errorf("appconfig: flags: %w", err)
	}

	f := Default()
	if path != "" {
		var err error
		if f, err = LoadFile(path); err != nil {
			return File{}, err
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "addr":
			f.Server.Addr = override.Server.Addr
		case "store":
			f.Store.Backend = override.Store.Backend
		case "dsn":
			f.Store.DSN = override.Store.DSN
		case "redis":
			f.Store.RedisAddr = override.Store.RedisAddr
		case "notifier":
			f.Notifier.Kind = override.Notifier.Kind
		case "trust-proxy":
			f.Server.TrustProxy = override.Server.TrustProxy
		case "log-level":
			f.Server.LogLevel = override.Server.LogLevel
		}
	})
	return f, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the server-level settings. Engine settings are checked by
// goGuard.Config.Validate once mapped.
func (f File) Validate() error {
	var errs []error

	if strings.TrimSpace(f.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if f.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be >= 0"))
	}
	if _, err := ParseLevel(f.Server.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if f.Server.LogFormat != "text" && f.Server.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("server.log_format %q must be text or json", f.Server.LogFormat))
	}

	if f.Server.LoginThrottle < 0 {
		errs = append(errs, errors.New("server.login_throttle must be >= 0"))
	}
	if f.Server.LoginThrottle > 0 {
		if f.Store.Backend != BackendRedis && f.Store.Backend != BackendMiniredis {
			errs = append(errs, errors.New("server.login_throttle needs the redis or miniredis store"))
		}
		if f.Server.ThrottleWindow <= 0 {
			errs = append(errs, errors.New("server.throttle_window must be > 0"))
		}
	}

	switch {
	case !slices.Contains(backends, f.Store.Backend):
		errs = append(errs, fmt.Errorf("store.backend %q must be one of %s", f.Store.Backend, strings.Join(backends, ", ")))
	case (f.Store.Backend == BackendPostgres || f.Store.Backend == BackendSQLite) && f.Store.DSN == "":
		errs = append(errs, fmt.Errorf("store.dsn is required for %s", f.Store.Backend))
	case f.Store.Backend == BackendRedis && f.Store.RedisAddr == "":
		errs = append(errs, errors.New("store.redis_addr is required for redis"))
	}
	if f.Store.UsernameCacheTTL < 0 {
		errs = append(errs, errors.New("store.username_cache_ttl must be >= 0"))
	}

	switch {
	case !slices.Contains(notifiers, f.Notifier.Kind):
		errs = append(errs, fmt.Errorf("notifier.kind %q must be log or smtp", f.Notifier.Kind))
	case f.Notifier.Kind == NotifierSMTP && (f.Notifier.SMTPHost == "" || f.Notifier.From == ""):
		errs = append(errs, errors.New("notifier.smtp_host and notifier.from are required for smtp"))
	}

	if f.Engine.TicketsEnabled && len(f.Engine.TicketSecret) < 32 {
		errs = append(errs, errors.New("engine.ticket_secret must be at least 32 bytes when tickets are enabled"))
	}
	return errors.Join(errs...)
}

// EngineConfig maps the [engine] section onto goGuard.Config. Tickets are
// signed with HS256 using ticket_secret.
func (f File) EngineConfig() goGuard.Config {
	e := f.Engine
	cfg := goGuard.DefaultConfig()

	cfg.Login.MaxAttempts = e.MaxLoginAttempts
	cfg.Login.BanDuration = e.BanDuration
	cfg.OTP.VerificationDigits = e.VerificationDigits
	cfg.OTP.IPConfirmationDigits = e.IPConfirmationDigits
	cfg.OTP.MaxAttempts = e.OTPMaxAttempts
	cfg.OTP.ResendCooldown = e.ResendCooldown
	cfg.OTP.CodeTTL = e.CodeTTL
	cfg.Registration.MaxUsernameLength = e.MaxUsernameLength
	cfg.Registration.MaxAccountsPerEmail = e.MaxAccountsPerEmail
	cfg.Registration.AllowedEmailDomains = slices.Clone(e.AllowedEmailDomains)
	cfg.Password.Algorithm = e.PasswordAlgorithm
	cfg.Session.IdleTimeout = e.SessionIdleTimeout
	cfg.Session.MaxSessions = e.MaxSessions
	cfg.Audit.Enabled = e.Audit
	cfg.Metrics.Enabled = e.Metrics
	cfg.Metrics.EnableLatencyHistograms = e.Metrics

	if e.TicketsEnabled {
		cfg.Ticket.Enabled = true
		cfg.Ticket.SigningMethod = "hs256"
		cfg.Ticket.PrivateKey = []byte(e.TicketSecret)
		cfg.Ticket.TTL = e.TicketTTL
	}
	return cfg
}

// SMTPConfig maps the [notifier] section onto notify.SMTPConfig.
func (f File) SMTPConfig() notify.SMTPConfig {
	n := f.Notifier
	cfg := notify.DefaultSMTPConfig()
	cfg.Host = n.SMTPHost
	cfg.Port = n.SMTPPort
	cfg.Username = n.SMTPUsername
	cfg.Password = n.SMTPPassword
	cfg.From = n.From
	cfg.FromName = n.FromName
	if n.Timeout > 0 {
		cfg.Timeout = n.Timeout
	}
	return cfg
}
