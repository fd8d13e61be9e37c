package carebook

import (
	"context"
	"errors"
)

const (
	auditEventCodeRequested        = "otp_requested"
	auditEventCodeResent           = "otp_resent"
	auditEventCodeVerifySuccess    = "otp_verify_success"
	auditEventCodeVerifyFailure    = "otp_verify_failure"
	auditEventMagicLinkRequested   = "magic_link_requested"
	auditEventMagicLinkSuccess     = "magic_link_verify_success"
	auditEventMagicLinkFailure     = "magic_link_verify_failure"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventSignupSuccess        = "signup_success"
	auditEventSignupFailure        = "signup_failure"
	auditEventSignupDuplicate      = "signup_duplicate"
	auditEventAccountProvisioned   = "account_provisioned"
	auditEventAccountVerified      = "account_verified"
	auditEventRoleChanged          = "role_changed"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventEmailDeliveryFailure = "email_delivery_failure"
)

// AuditErrorCode is the stable error label recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrCodeUsed           AuditErrorCode = "code_used"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrMagicLinkInvalid   AuditErrorCode = "magic_link_invalid"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, email string, err *RateLimitError) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", email, err, func() map[string]string {
		return map[string]string{
			"scope":          scope,
			"remaining_time": err.RemainingTime.String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidCodeFormat),
		errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidInput
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrCodeUsed):
		return auditErrCodeUsed
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrMagicLinkInvalid):
		return auditErrMagicLinkInvalid
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
