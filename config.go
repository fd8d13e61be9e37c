package carebook

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// EnvDevelopment relaxes the signing-secret requirement: Build generates an
// ephemeral secret instead of failing.
const EnvDevelopment = "development"

// Config is the complete Engine configuration. Start from DefaultConfig and
// override fields; Builder.Build calls Validate.
type Config struct {
	Environment string
	JWT         JWTConfig
	OTP         OTPConfig
	MagicLink   MagicLinkConfig
	RateLimit   RateLimitConfig
	Password    PasswordConfig
	Store       StoreConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session tokens. Secret is required outside development.
//
// KeyID tags new tokens with a "kid" header. PreviousSecrets maps retired key
// ids to their secrets so sessions signed before a rotation stay valid until
// they expire; it requires KeyID.
type JWTConfig struct {
	Secret          []byte
	TTL             time.Duration
	Issuer          string
	Leeway          time.Duration
	KeyID           string
	PreviousSecrets map[string][]byte
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time codes.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
MAGIC LINK CONFIG
====================================
*/

// MagicLinkConfig controls sign-in links.
//
// RevealUnknownAccount makes RequestMagicLink answer ErrUserNotFound for
// unknown emails instead of the generic success message. SupersedePrevious
// invalidates older active links when a new one is issued.
type MagicLinkConfig struct {
	TTL                  time.Duration
	BaseURL              string
	RevealUnknownAccount bool
	SupersedePrevious    bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds per-email request volume. Code and link requests
// share MaxRequests/Window, each under its own scope; password login uses the
// Login pair.
type RateLimitConfig struct {
	MaxRequests      int
	Window           time.Duration
	LoginMaxAttempts int
	LoginWindow      time.Duration
	RedisPrefix      string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig sets Redis key prefixes and how long ledger records are kept
// after they expire.
type StoreConfig struct {
	CredentialPrefix string
	OTPPrefix        string
	MagicLinkPrefix  string
	Retention        time.Duration
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

// DefaultConfig returns production defaults: 10-minute codes with 3 attempts,
// 15-minute links, 3 requests per 15 minutes, 7-day sessions.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:    7 * 24 * time.Hour,
			Issuer: "carebook",
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 3,
		},
		MagicLink: MagicLinkConfig{
			TTL:                  15 * time.Minute,
			BaseURL:              "http://localhost:3000/auth/magic",
			RevealUnknownAccount: true,
			SupersedePrevious:    true,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:      3,
			Window:           15 * time.Minute,
			LoginMaxAttempts: 10,
			LoginWindow:      15 * time.Minute,
			RedisPrefix:      "rl",
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Store: StoreConfig{
			CredentialPrefix: "cred",
			OTPPrefix:        "otp",
			MagicLinkPrefix:  "ml",
			Retention:        24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.PreviousSecrets != nil {
		out.JWT.PreviousSecrets = make(map[string][]byte, len(cfg.JWT.PreviousSecrets))
		for kid, secret := range cfg.JWT.PreviousSecrets {
			out.JWT.PreviousSecrets[kid] = cloneBytes(secret)
		}
	}
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

// IsDevelopment reports whether the config targets local development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvDevelopment)
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the config for values the Engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) == 0 && !c.IsDevelopment() {
		return errors.New("JWT Secret is required outside development")
	}
	if len(c.JWT.Secret) > 0 && len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if len(c.JWT.PreviousSecrets) > 0 && strings.TrimSpace(c.JWT.KeyID) == "" {
		return errors.New("JWT PreviousSecrets requires KeyID")
	}
	for kid, secret := range c.JWT.PreviousSecrets {
		if strings.TrimSpace(kid) == "" || len(secret) < 32 {
			return errors.New("JWT PreviousSecrets entries need a key id and a secret of at least 32 bytes")
		}
	}

	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	// Magic link
	if c.MagicLink.TTL <= 0 {
		return errors.New("MagicLink TTL must be > 0")
	}
	u, err := url.Parse(c.MagicLink.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("MagicLink BaseURL must be an absolute URL")
	}

	// Rate limit
	if c.RateLimit.MaxRequests < 0 || c.RateLimit.LoginMaxAttempts < 0 {
		return errors.New("RateLimit limits must be >= 0")
	}
	if c.RateLimit.MaxRequests > 0 && c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0 when MaxRequests is set")
	}
	if c.RateLimit.LoginMaxAttempts > 0 && c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0 when LoginMaxAttempts is set")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Store
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
