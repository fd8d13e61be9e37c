package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
)

const (
	otpMin           = 100000
	otpMax           = 999999
	magicTokenRawLen = 32
)

var otpSpan = big.NewInt(otpMax - otpMin + 1)

// NewOTPCode returns a 6-digit code drawn uniformly from [100000, 999999].
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpan)
	if err != nil {
		return "", err
	}
	v := n.Int64() + otpMin
	if v < otpMin || v > otpMax {
		return "", errors.New("otp out of range")
	}

	var buf [6]byte
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[:]), nil
}

// ValidOTPFormat reports whether code is exactly six ASCII digits.
func ValidOTPFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// NewMagicToken returns 256 bits of randomness, base64url without padding.
func NewMagicToken() (string, error) {
	var raw [magicTokenRawLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashSecret returns the hex SHA-256 of a code or token. Only this value is
// ever persisted.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// RandomBytes fills a fresh slice of n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
