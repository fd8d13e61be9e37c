package carebook

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/carebook/internal"
	"github.com/MrEthical07/carebook/internal/stores"
	"go.uber.org/zap"
)

const (
	scopeOTP = "otp"

	msgCodeSent = "If the email can receive codes, a verification code has been sent."
)

// codePolicy decides how issueCode treats an unknown email and a failed
// delivery. Send and resend share the rest of the path.
type codePolicy struct {
	// ProvisionUnknown creates a minimal account for unknown emails.
	ProvisionUnknown bool
	// RevealUnknownAccount answers ErrUserNotFound instead of the generic
	// message when the email is unknown and not provisioned.
	RevealUnknownAccount bool
	// FailOnDeliveryError surfaces ErrDeliveryFailed. The issued code stays
	// valid either way.
	FailOnDeliveryError bool
}

var (
	requestCodePolicy = codePolicy{ProvisionUnknown: true, FailOnDeliveryError: true}
	resendCodePolicy  = codePolicy{}
)

// RequestCode issues a one-time code for email, creating a minimal account
// when none exists. The response is identical for new and existing accounts.
func (e *Engine) RequestCode(ctx context.Context, email string) (*IssueResult, error) {
	res, err := e.issueCode(ctx, email, requestCodePolicy)
	if err == nil {
		e.metricInc(MetricCodeRequested)
	}
	return res, err
}

// ResendCode issues a fresh code for an existing account. Unknown emails get
// the same generic answer and nothing is written.
func (e *Engine) ResendCode(ctx context.Context, email string) (*IssueResult, error) {
	res, err := e.issueCode(ctx, email, resendCodePolicy)
	if err == nil {
		e.metricInc(MetricCodeResent)
	}
	return res, err
}

func (e *Engine) issueCode(ctx context.Context, rawEmail string, policy codePolicy) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	event := auditEventCodeResent
	if policy.ProvisionUnknown {
		event = auditEventCodeRequested
	}

	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := e.checkRate(ctx, e.limiter, scopeOTP, email); err != nil {
		return nil, err
	}

	result := &IssueResult{Message: msgCodeSent, ExpiresIn: e.config.OTP.TTL}

	var cred *Credential
	if policy.ProvisionUnknown {
		cred, err = e.findOrCreateMinimalAccount(ctx, email)
	} else {
		cred, err = e.credentials.GetByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, event, false, "", email, err, nil)
			if policy.RevealUnknownAccount {
				return nil, ErrUserNotFound
			}
			return result, nil
		}
		e.logger.Error("credential lookup failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	code, err := internal.NewOTPCode()
	if err != nil {
		return nil, err
	}
	if _, err := e.otps.Issue(ctx, email, internal.HashSecret(code), e.now(), e.config.OTP.TTL); err != nil {
		e.logger.Error("otp issue failed", zap.String("email", email), zap.Error(err))
		return nil, mapLedgerError(err)
	}

	sendErr := e.send(ctx, email, TemplateOTP, map[string]string{
		"code":             code,
		"expiresInMinutes": strconv.Itoa(int(e.config.OTP.TTL / time.Minute)),
	})
	e.emitAudit(ctx, event, true, cred.ID, email, nil, func() map[string]string {
		if sendErr != nil {
			return map[string]string{"delivery": "failed"}
		}
		return map[string]string{"delivery": "sent"}
	})
	if sendErr != nil && policy.FailOnDeliveryError {
		return nil, ErrDeliveryFailed
	}
	return result, nil
}

// VerifyCode checks code for email in a fixed order: format, existence,
// attempts, used, expiry, most-recent, account. Success consumes the code and
// returns a session token.
func (e *Engine) VerifyCode(ctx context.Context, rawEmail, code string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeVerify(start)

	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if !internal.ValidOTPFormat(code) {
		return nil, e.codeFailure(ctx, email, "", ErrInvalidCodeFormat)
	}

	now := e.now()
	record, err := e.otps.Lookup(ctx, email, internal.HashSecret(code))
	if err != nil {
		if !errors.Is(err, stores.ErrOTPNotFound) {
			e.logger.Error("otp lookup failed", zap.String("email", email), zap.Error(err))
			return nil, mapLedgerError(err)
		}
		e.chargeCurrent(ctx, email)
		return nil, e.codeFailure(ctx, email, "", ErrCodeInvalid)
	}

	if record.Attempts >= e.config.OTP.MaxAttempts {
		e.metricInc(MetricCodeAttemptsExceeded)
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeAttemptsExceeded)
	}
	if record.Used() {
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeUsed)
	}
	if record.Expired(now) {
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeExpired)
	}

	current, err := e.otps.Current(ctx, email)
	if err != nil && !errors.Is(err, stores.ErrOTPNotFound) {
		return nil, mapLedgerError(err)
	}
	if current == nil || current.ID != record.ID {
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeInvalid)
	}

	cred, err := e.credentials.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if _, incErr := e.otps.IncrementAttempts(ctx, email, record.ID); incErr != nil {
				e.logger.Warn("otp attempt increment failed", zap.Error(incErr))
			}
			return nil, e.codeFailure(ctx, email, record.ID, ErrUserNotFound)
		}
		return nil, err
	}

	// Guesses can land between the read above and this point, so the cap is
	// checked again inside the consume script.
	won, err := e.otps.Consume(ctx, email, record.ID, now, e.config.OTP.MaxAttempts)
	if errors.Is(err, stores.ErrOTPAttemptsExceeded) {
		e.metricInc(MetricCodeAttemptsExceeded)
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeAttemptsExceeded)
	}
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if !won {
		return nil, e.codeFailure(ctx, email, record.ID, ErrCodeUsed)
	}

	e.stampVerified(ctx, cred)

	result, err := e.mintToken(cred)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricCodeVerifySuccess)
	e.emitAudit(ctx, auditEventCodeVerifySuccess, true, cred.ID, email, nil, nil)
	return result, nil
}

// chargeCurrent counts a miss against the email's live code so guesses across
// the whole code space exhaust it.
func (e *Engine) chargeCurrent(ctx context.Context, email string) {
	current, err := e.otps.Current(ctx, email)
	if err != nil {
		if !errors.Is(err, stores.ErrOTPNotFound) {
			e.logger.Warn("otp current lookup failed", zap.String("email", email), zap.Error(err))
		}
		return
	}
	if _, err := e.otps.IncrementAttempts(ctx, email, current.ID); err != nil && !errors.Is(err, stores.ErrOTPNotFound) {
		e.logger.Warn("otp attempt increment failed", zap.String("email", email), zap.Error(err))
	}
}

func (e *Engine) codeFailure(ctx context.Context, email, recordID string, err error) error {
	e.metricInc(MetricCodeVerifyFailure)
	e.emitAudit(ctx, auditEventCodeVerifyFailure, false, "", email, err, func() map[string]string {
		if recordID == "" {
			return nil
		}
		return map[string]string{"otp_id": recordID}
	})
	return err
}
