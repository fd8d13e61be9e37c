package carebook

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrInvalidEmail is returned when an email is empty or malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidCodeFormat is returned when a submitted code is not six digits.
	ErrInvalidCodeFormat = errors.New("invalid code format")
	// ErrInvalidRequest covers other malformed input (missing name, weak password).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited is wrapped by every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrCodeInvalid is returned when no usable code matches the submission.
	ErrCodeInvalid = errors.New("invalid or expired code")
	// ErrCodeAttemptsExceeded is returned once a code has absorbed its failed attempts.
	ErrCodeAttemptsExceeded = errors.New("too many attempts")
	// ErrCodeUsed is returned for a code that was already consumed.
	ErrCodeUsed = errors.New("code already used")
	// ErrCodeExpired is returned for a code past its expiry.
	ErrCodeExpired = errors.New("code expired")
	// ErrUserNotFound is returned when no credential exists for the email or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrMagicLinkInvalid is returned for unknown, used, superseded or expired links.
	ErrMagicLinkInvalid = errors.New("invalid or expired magic link")
	// ErrInvalidCredentials is the single password-login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when signup hits an existing email.
	ErrAccountExists = errors.New("account already exists")
	// ErrRoleInvalid is returned for roles outside user, counselor and admin.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrDeliveryFailed is returned when the initial code email could not be sent.
	ErrDeliveryFailed = errors.New("email delivery failed")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTokenInvalid is returned for session tokens that fail verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEngineNotReady is returned when the Engine was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError reports a denied request and how long until the next attempt
// can succeed.
type RateLimitError struct {
	RemainingTime time.Duration
	Message       string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limited, retry in " + strconv.FormatInt(int64(e.RemainingTime/time.Second), 10) + "s"
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
