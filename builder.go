package carebook

import (
	"errors"
	"time"

	"github.com/MrEthical07/carebook/internal"
	"github.com/MrEthical07/carebook/internal/rate"
	"github.com/MrEthical07/carebook/internal/stores"
	"github.com/MrEthical07/carebook/jwt"
	"github.com/MrEthical07/carebook/password"
	"github.com/MrEthical07/carebook/permission"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	mailer      EmailGateway
	auditSink   AuditSink
	logger      *zap.Logger
	clock       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the ledgers, the limiters and, unless
// WithCredentialStore is used, the credential store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

func (b *Builder) WithEmailGateway(gw EmailGateway) *Builder {
	b.mailer = gw
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now. Tests use it to step past expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.mailer == nil {
		return nil, errors.New("email gateway required")
	}

	// -------- SIGNING SECRET --------
	if len(cfg.JWT.Secret) == 0 {
		secret, err := internal.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		cfg.JWT.Secret = secret
		logger.Warn("no JWT secret configured; using an ephemeral development secret, sessions will not survive a restart")
	}

	// -------- ROLES --------
	roles, err := permission.NewPracticeRoles()
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret:     cloneBytes(cfg.JWT.Secret),
		TTL:        cfg.JWT.TTL,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
		KeyID:      cfg.JWT.KeyID,
		VerifyKeys: cfg.JWT.PreviousSecrets,
	})
	if err != nil {
		return nil, err
	}

	credentials := b.credentials
	if credentials == nil {
		credentials = NewRedisCredentialStore(b.redis, cfg.Store.CredentialPrefix)
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      logger.Named("carebook"),
		clock:       clock,
		credentials: credentials,
		mailer:      b.mailer,
		roles:       roles,
		otps:        stores.NewOTPLedger(b.redis, cfg.Store.OTPPrefix, cfg.Store.Retention),
		links:       stores.NewMagicLinkLedger(b.redis, cfg.Store.MagicLinkPrefix, cfg.Store.Retention),
		limiter: rate.New(b.redis, rate.Config{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			Prefix:      cfg.RateLimit.RedisPrefix,
		}),
		loginLimiter: rate.New(b.redis, rate.Config{
			MaxRequests: cfg.RateLimit.LoginMaxAttempts,
			Window:      cfg.RateLimit.LoginWindow,
			Prefix:      cfg.RateLimit.RedisPrefix,
		}),
		hasher:     hasher,
		jwtManager: jm,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:    NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
