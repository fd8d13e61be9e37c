package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/internal/logging"
	"github.com/MrEthical07/carebook/mail"
	"github.com/joho/godotenv"
)

// Config is the server process configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Environment     string

	// RedisURL empty means an in-process miniredis, for local development.
	RedisURL string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration
	JWTKeyID  string
	// JWTPreviousSecrets holds retired signing secrets by key id, read from
	// JWT_PREVIOUS_SECRETS as "kid=secret,kid=secret".
	JWTPreviousSecrets map[string]string

	OTPTTL         time.Duration
	OTPMaxAttempts int

	MagicLinkTTL       time.Duration
	MagicLinkBaseURL   string
	MagicLinkReveal    bool
	MagicLinkSupersede bool

	RateLimitMax     int
	RateLimitWindow  time.Duration
	LoginMaxAttempts int
	LoginWindow      time.Duration

	RecordRetention time.Duration
	SweepSchedule   string

	// MailEndpoint empty means emails are written to the log.
	MailEndpoint string
	MailAPIKey   string
	MailFrom     string
	MailTimeout  time.Duration

	AuditToLog bool
	Log        logging.Config
}

// Load reads .env when present, then the environment.
func Load() Config {
	_ = godotenv.Load()

	env := getenv("APP_ENV", "production")
	dev := strings.EqualFold(env, carebook.EnvDevelopment)
	defaults := carebook.DefaultConfig()

	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Environment:     env,

		RedisURL: getenv("REDIS_URL", ""),

		JWTSecret: getenv("JWT_SECRET", ""),
		JWTIssuer: getenv("JWT_ISSUER", defaults.JWT.Issuer),
		JWTTTL:    getenvDuration("JWT_TTL", defaults.JWT.TTL),
		JWTKeyID:  getenv("JWT_KEY_ID", ""),

		JWTPreviousSecrets: getenvPairs("JWT_PREVIOUS_SECRETS"),

		OTPTTL:         getenvDuration("OTP_TTL", defaults.OTP.TTL),
		OTPMaxAttempts: getenvInt("OTP_MAX_ATTEMPTS", defaults.OTP.MaxAttempts),

		MagicLinkTTL:       getenvDuration("MAGIC_LINK_TTL", defaults.MagicLink.TTL),
		MagicLinkBaseURL:   getenv("MAGIC_LINK_BASE_URL", defaults.MagicLink.BaseURL),
		MagicLinkReveal:    getenvBool("MAGIC_LINK_REVEAL_UNKNOWN", defaults.MagicLink.RevealUnknownAccount),
		MagicLinkSupersede: getenvBool("MAGIC_LINK_SUPERSEDE", defaults.MagicLink.SupersedePrevious),

		RateLimitMax:     getenvInt("RATE_LIMIT_MAX", defaults.RateLimit.MaxRequests),
		RateLimitWindow:  getenvDuration("RATE_LIMIT_WINDOW", defaults.RateLimit.Window),
		LoginMaxAttempts: getenvInt("LOGIN_MAX_ATTEMPTS", defaults.RateLimit.LoginMaxAttempts),
		LoginWindow:      getenvDuration("LOGIN_WINDOW", defaults.RateLimit.LoginWindow),

		RecordRetention: getenvDuration("RECORD_RETENTION", defaults.Store.Retention),
		SweepSchedule:   getenv("SWEEP_SCHEDULE", "@every 15m"),

		MailEndpoint: getenv("MAIL_ENDPOINT", ""),
		MailAPIKey:   getenv("MAIL_API_KEY", ""),
		MailFrom:     getenv("MAIL_FROM", "no-reply@carebook.local"),
		MailTimeout:  getenvDuration("MAIL_TIMEOUT", 10*time.Second),

		AuditToLog: getenvBool("AUDIT_TO_LOG", true),
		Log: logging.Config{
			Level:  getenv("LOG_LEVEL", "info"),
			Dev:    dev || os.Getenv("LOG_DEV") == "1",
			File:   getenv("LOG_FILE", ""),
			MaxAge: getenvDuration("LOG_MAX_AGE", 7*24*time.Hour),
		},
	}
}

// Engine translates the process config into the Engine's.
func (c Config) Engine() carebook.Config {
	cfg := carebook.DefaultConfig()
	cfg.Environment = c.Environment
	if c.JWTSecret != "" {
		cfg.JWT.Secret = []byte(c.JWTSecret)
	}
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.TTL = c.JWTTTL
	cfg.JWT.KeyID = c.JWTKeyID
	if len(c.JWTPreviousSecrets) > 0 {
		cfg.JWT.PreviousSecrets = make(map[string][]byte, len(c.JWTPreviousSecrets))
		for kid, secret := range c.JWTPreviousSecrets {
			cfg.JWT.PreviousSecrets[kid] = []byte(secret)
		}
	}

	cfg.OTP.TTL = c.OTPTTL
	cfg.OTP.MaxAttempts = c.OTPMaxAttempts

	cfg.MagicLink.TTL = c.MagicLinkTTL
	cfg.MagicLink.BaseURL = c.MagicLinkBaseURL
	cfg.MagicLink.RevealUnknownAccount = c.MagicLinkReveal
	cfg.MagicLink.SupersedePrevious = c.MagicLinkSupersede

	cfg.RateLimit.MaxRequests = c.RateLimitMax
	cfg.RateLimit.Window = c.RateLimitWindow
	cfg.RateLimit.LoginMaxAttempts = c.LoginMaxAttempts
	cfg.RateLimit.LoginWindow = c.LoginWindow

	cfg.Store.Retention = c.RecordRetention
	return cfg
}

// Mail returns the HTTP transport settings, or false when no endpoint is
// configured.
func (c Config) Mail() (mail.HTTPConfig, bool) {
	if c.MailEndpoint == "" {
		return mail.HTTPConfig{}, false
	}
	return mail.HTTPConfig{
		Endpoint:   c.MailEndpoint,
		APIKey:     c.MailAPIKey,
		From:       c.MailFrom,
		Timeout:    c.MailTimeout,
		RetryCount: 2,
	}, true
}

// ErrMailEndpointRequired is returned by CheckMail outside development.
var ErrMailEndpointRequired = errors.New("MAIL_ENDPOINT is required outside development")

// CheckMail fails when no mail endpoint is set and the process is not in
// development, where codes would otherwise only reach the log.
func (c Config) CheckMail() error {
	if c.MailEndpoint != "" || strings.EqualFold(c.Environment, carebook.EnvDevelopment) {
		return nil
	}
	return ErrMailEndpointRequired
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getenvPairs parses "k=v,k=v". Entries without "=" are skipped.
func getenvPairs(key string) map[string]string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
