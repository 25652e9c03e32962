// Command goguard-server serves the goGuard workflows over HTTP.
//
//	goguard-server -config goguard.toml
//	goguard-server -store sqlite -dsn goguard.db -addr :8080
//	goguard-server -store miniredis        # in-process Redis, data lost on exit
//
// Codes are written to the log unless [notifier] kind = "smtp".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/appconfig"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/transport/httpapi"
	"github.com/gorilla/mux"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "goguard-server: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. A nil ln listens on the configured address.
func run(ctx context.Context, args []string, logOut io.Writer, ln net.Listener) error {
	f, err := appconfig.Parse(args)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	logger := f.Logger(logOut)

	be, err := openStore(ctx, f.Store, logger)
	if err != nil {
		return err
	}
	defer be.close()

	notifier, err := newNotifier(f, logger)
	if err != nil {
		return err
	}

	cfg := f.EngineConfig()
	b := goGuard.New().
		WithConfig(cfg).
		WithStore(be.store).
		WithNotifier(notifier).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goGuard.NewSlogSink(logger))
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, w := range cfg.Lint() {
		logger.Warn("config", "severity", w.Severity.String(), "code", w.Code, "message", w.Message)
	}

	if ln == nil {
		if ln, err = net.Listen("tcp", f.Server.Addr); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Handler:           newRouter(f, engine, newThrottle(f, be), logger),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	logger.Info("listening", "addr", ln.Addr().String(), "store", f.Store.Backend, "notifier", f.Notifier.Kind)
	return serve(ctx, srv, ln, f.Server.ShutdownTimeout, logger)
}

func newRouter(f appconfig.File, engine *goGuard.Engine, throttle httpapi.LoginThrottle, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	if f.Server.MetricsPath != "" {
		r.Handle(f.Server.MetricsPath, prometheus.NewExporter(engine).Handler()).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(httpapi.New(engine, httpapi.Options{
		TrustProxy: f.Server.TrustProxy,
		Logger:     logger,
		Throttle:   throttle,
	}))
	return r
}

// newThrottle returns nil unless the throttle is enabled. Validate has
// already checked that the store is Redis-backed.
func newThrottle(f appconfig.File, be *backend) httpapi.LoginThrottle {
	if f.Server.LoginThrottle <= 0 || be.redis == nil {
		return nil
	}
	return rate.New(be.redis, rate.Config{
		MaxFailures: f.Server.LoginThrottle,
		Window:      f.Server.ThrottleWindow,
		Prefix:      f.Store.RedisPrefix + ":throttle",
	})
}

func newNotifier(f appconfig.File, logger *slog.Logger) (goGuard.Notifier, error) {
	if f.Notifier.Kind == appconfig.NotifierSMTP {
		return notify.NewSMTP(f.SMTPConfig())
	}
	logger.Warn("codes are written to the log; use the smtp notifier outside development")
	return notify.NewLog(logger), nil
}

// serve runs srv on ln and shuts it down gracefully once ctx is done.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
