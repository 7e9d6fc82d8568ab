package deskauth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/deskauth/backupcode"
	"github.com/MrEthical07/deskauth/internal/audit"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/password"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/revocation"
	"github.com/MrEthical07/deskauth/totp"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	users       UserStore
	refreshes   refresh.Store
	revocations revocation.Store
	resets      reset.Store
	mailer      Mailer
	auditSink   audit.Sink
	logger      *slog.Logger
	clock       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets every store from one backend.
func (b *Builder) WithStore(s Store) *Builder {
	b.users = s
	b.refreshes = s
	b.revocations = s
	b.resets = s
	return b
}

func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.users = s
	return b
}

func (b *Builder) WithRefreshStore(s refresh.Store) *Builder {
	b.refreshes = s
	return b
}

// WithRevocationStore overrides the blacklist backend, for example with store/redis.
func (b *Builder) WithRevocationStore(s revocation.Store) *Builder {
	b.revocations = s
	return b
}

func (b *Builder) WithResetStore(s reset.Store) *Builder {
	b.resets = s
	return b
}

// WithMailer sets reset-link delivery. Without one, reset tokens are issued but not sent.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink receives audit events. Defaults to logging them through the engine logger.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now across every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case b.users == nil:
		return nil, errors.New("user store required")
	case b.refreshes == nil:
		return nil, errors.New("refresh store required")
	case b.revocations == nil:
		return nil, errors.New("revocation store required")
	case b.resets == nil:
		return nil, errors.New("reset store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.SlogSink{Logger: logger}
	}

	// -------- PASSWORD HASHING --------
	bc := password.NewBcrypt(cfg.Password.BcryptCost)
	ar, err := password.NewArgon2(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}
	var hasher *password.Multi
	if cfg.Password.Scheme == "argon2id" {
		hasher = password.NewMulti(ar, bc)
	} else {
		hasher = password.NewMulti(bc, ar)
	}
	dummy, err := hasher.Hash("deskauth-timing-equaliser")
	if err != nil {
		return nil, err
	}

	// -------- ACCESS TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Expiry:        cfg.JWT.Expiry,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	jm.WithClock(now)

	refreshes := refresh.NewManager(b.refreshes,
		refresh.WithTTL(cfg.Refresh.TTL),
		refresh.WithTokenBytes(cfg.Refresh.TokenBytes),
		refresh.WithClock(now),
	)
	otp := totp.New(totp.Config{
		Issuer:    cfg.TOTP.Issuer,
		Digits:    cfg.TOTP.Digits,
		Period:    cfg.TOTP.Period,
		Algorithm: cfg.TOTP.Algorithm,
		Skew:      cfg.TOTP.Skew,
	})

	engine := &Engine{
		config:      cfg,
		users:       b.users,
		mailer:      b.mailer,
		log:         logger,
		now:         now,
		hasher:      hasher,
		dummyHash:   dummy,
		jwt:         jm,
		totp:        otp,
		codes:       backupcode.New(cfg.BackupCodes.BcryptCost),
		refresh:     refreshes,
		revocations: revocation.NewRegistry(b.revocations).WithClock(now),
		resets:      reset.NewManager(b.resets, cfg.Reset.TTL).WithClock(now),
		metrics:     internalmetrics.New(),
	}
	engine.dispatcher = audit.NewDispatcher(audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		TaskTimeout: cfg.Audit.TaskTimeout,
	}, sink, logger)

	b.built = true
	return engine, nil
}
