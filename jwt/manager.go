package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session lifetime used when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// minSecretLen is the shortest HS256 secret NewManager accepts.
const minSecretLen = 32

// Config controls session token issuance and verification.
//
// Secret is the HS256 signing key. VerifyKeys holds older secrets by key id so
// tokens signed before a rotation keep verifying until they expire.
type Config struct {
	Secret       []byte
	TTL          time.Duration
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	KeyID        string
	VerifyKeys   map[string][]byte
}

// Manager signs and verifies session tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the session payload: {userId, email, role} plus registered claims.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minSecretLen)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minSecretLen {
			return nil, fmt.Errorf("verify key %q is shorter than %d bytes", kid, minSecretLen)
		}
	}
	if len(cfg.VerifyKeys) > 0 && cfg.KeyID == "" {
		return nil, errors.New("VerifyKeys requires KeyID")
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a session token for the given identity and returns it with its
// expiry.
func (m *Manager) Issue(userID, email, role string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.config.TTL)
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, algorithm, expiry and issuer and returns the
// claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey(t)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return nil, errors.New("token missing userId")
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		maxAllowed := time.Now().Add(m.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

func (m *Manager) verifyKey(t *jwt.Token) (interface{}, error) {
	if m.config.KeyID == "" {
		return m.config.Secret, nil
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if kid == m.config.KeyID {
		return m.config.Secret, nil
	}
	if key, ok := m.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}
