package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesEngineDefaults(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())

	got := f.EngineConfig()
	want := goGuard.DefaultConfig()
	assert.Equal(t, want.Login, got.Login)
	assert.Equal(t, want.OTP, got.OTP)
	assert.Equal(t, want.Password.Algorithm, got.Password.Algorithm)
	assert.Equal(t, want.Session, got.Session)
	assert.False(t, got.Ticket.Enabled)
	require.NoError(t, got.Validate())
}

func TestDecodeOverridesDefaults(t *testing.T) {
	f, err := Decode(strings.NewReader(`
[server]
addr = "127.0.0.1:9000"
log_format = "json"

[store]
backend = "sqlite"
dsn = "users.db"

[engine]
max_login_attempts = 6
ban_duration = "1m30s"
allowed_email_domains = ["gmail.com"]
tickets_enabled = true
ticket_secret = "0123456789abcdef0123456789abcdef"
`))
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	assert.Equal(t, "127.0.0.1:9000", f.Server.Addr)
	assert.Equal(t, "/metrics", f.Server.MetricsPath, "untouched keys keep defaults")
	assert.Equal(t, BackendSQLite, f.Store.Backend)

	cfg := f.EngineConfig()
	assert.Equal(t, 6, cfg.Login.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Login.BanDuration)
	assert.Equal(t, []string{"gmail.com"}, cfg.Registration.AllowedEmailDomains)
	assert.True(t, cfg.Ticket.Enabled)
	assert.Equal(t, "hs256", cfg.Ticket.SigningMethod)
	require.NoError(t, cfg.Validate())
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("[store]\nbackend = \"memory\"\nbakend = \"redis\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.bakend")
}

func TestDecodeRejectsBadSyntax(t *testing.T) {
	_, err := Decode(strings.NewReader("[server\naddr = 1"))
	assert.Error(t, err)
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goguard.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":7000"
log_level = "debug"

[store]
backend = "postgres"
dsn = "postgres://file"
`), 0o600))

	f, err := Parse([]string{"-config", path, "-dsn", "postgres://flag", "-trust-proxy"})
	require.NoError(t, err)

	assert.Equal(t, ":7000", f.Server.Addr, "file value kept when flag absent")
	assert.Equal(t, "debug", f.Server.LogLevel)
	assert.Equal(t, BackendPostgres, f.Store.Backend)
	assert.Equal(t, "postgres://flag", f.Store.DSN)
	assert.True(t, f.Server.TrustProxy)
}

func TestParseWithoutFile(t *testing.T) {
	f, err := Parse([]string{"-store", "miniredis", "-notifier", "log"})
	require.NoError(t, err)
	assert.Equal(t, BackendMiniredis, f.Store.Backend)
	assert.Equal(t, ":8080", f.Server.Addr)
	require.NoError(t, f.Validate())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]string{"-no-such-flag"})
	assert.Error(t, err)

	_, err = Parse([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*File)
		want   string
	}{
		{"unknown backend", func(f *File) { f.Store.Backend = "mongo" }, "store.backend"},
		{"sqlite without dsn", func(f *File) { f.Store.Backend = BackendSQLite }, "store.dsn"},
		{"redis without addr", func(f *File) { f.Store.Backend = BackendRedis }, "store.redis_addr"},
		{"unknown notifier", func(f *File) { f.Notifier.Kind = "pigeon" }, "notifier.kind"},
		{"smtp without from", func(f *File) { f.Notifier.Kind = NotifierSMTP }, "notifier.smtp_host"},
		{"short ticket secret", func(f *File) {
			f.Engine.TicketsEnabled = true
			f.Engine.TicketSecret = "short"
		}, "ticket_secret"},
		{"bad log level", func(f *File) { f.Server.LogLevel = "loud" }, "log_level"},
		{"bad log format", func(f *File) { f.Server.LogFormat = "xml" }, "log_format"},
		{"empty addr", func(f *File) { f.Server.Addr = " " }, "server.addr"},
		{"throttle without redis", func(f *File) { f.Server.LoginThrottle = 5 }, "login_throttle"},
		{"negative throttle", func(f *File) { f.Server.LoginThrottle = -1 }, "login_throttle"},
		{"throttle without window", func(f *File) {
			f.Store.Backend = BackendMiniredis
			f.Server.LoginThrottle = 5
			f.Server.ThrottleWindow = 0
		}, "throttle_window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Default()
			tc.mutate(&f)
			err := f.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSMTPConfig(t *testing.T) {
	f := Default()
	f.Notifier.Kind = NotifierSMTP
	f.Notifier.SMTPHost = "smtp.example.com"
	f.Notifier.SMTPPort = 2525
	f.Notifier.From = "noreply@example.com"

	cfg := f.SMTPConfig()
	assert.Equal(t, "smtp.example.com", cfg.Host)
	assert.Equal(t, 2525, cfg.Port)
	assert.Equal(t, "noreply@example.com", cfg.From)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.RequireTLS)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	f := Default()
	f.Server.LogFormat = "json"
	f.Server.LogLevel = "warn"

	logger := f.Logger(&buf)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
}
