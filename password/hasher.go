package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under MinLength.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned for passwords over MaxLength.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnknownHashFormat is returned for stored hashes neither argon2id nor bcrypt.
	ErrUnknownHashFormat = errors.New("unknown password hash format")
)

// Hasher hashes new passwords with argon2id and verifies both argon2id and
// legacy bcrypt hashes ($2a$, $2b$, $2y$).
type Hasher struct {
	argon *Argon2
	dummy string
}

// NewHasher builds a Hasher. A throwaway hash is prepared so DummyVerify costs
// the same as a real verification.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	dummy, err := a.Hash(strings.Repeat("x", a.config.MinLength))
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, dummy: dummy}, nil
}

// Hash returns an argon2id PHC string.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify checks password against encodedHash, picking the algorithm from the
// hash prefix.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return h.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownHashFormat
	}
}

// DummyVerify runs one argon2id verification against a throwaway hash. Login
// calls it when no account or no password exists.
func (h *Hasher) DummyVerify(password string) {
	_, _ = h.argon.Verify(password, h.dummy)
}

// NeedsRehash reports whether encodedHash should be replaced on the next
// successful login. Every bcrypt hash qualifies.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
