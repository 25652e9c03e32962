package goGuard

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/credential"
	"github.com/MrEthical07/goGuard/ipresolve"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/ticket"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	store     UserStore
	notifier  Notifier
	resolver  IPResolver
	hasher    password.Hasher
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the user record store. Required.
func (b *Builder) WithStore(store UserStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the code delivery channel. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithIPResolver sets how source addresses are found. The default,
// ipresolve.Context, reads the address attached with WithClientIP.
func (b *Builder) WithIPResolver(r IPResolver) *Builder {
	b.resolver = r
	return b
}

// WithHasher overrides the digest selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("user store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	resolver := b.resolver
	if resolver == nil {
		resolver = ipresolve.Context{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.New(cfg.Password.Algorithm, cfg.Password.hasherConfig())
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		verifier: credential.NewVerifier(b.store, hasher),
		hasher:   hasher,
		notifier: b.notifier,
		resolver: resolver,
		logger:   logger.With("component", "goguard"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.Ticket.Enabled {
		tm, err := ticket.NewManager(ticket.Config{
			TTL:           cfg.Ticket.TTL,
			SigningMethod: ticket.SigningMethod(strings.ToLower(cfg.Ticket.SigningMethod)),
			PrivateKey:    cloneBytes(cfg.Ticket.PrivateKey),
			PublicKey:     cloneBytes(cfg.Ticket.PublicKey),
			Issuer:        cfg.Ticket.Issuer,
		})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.tickets = tm
	}

	b.built = true

	return engine, nil
}
