package carebook

import (
	"context"
	"errors"

	"github.com/MrEthical07/carebook/password"
	"go.uber.org/zap"
)

const scopeLogin = "login"

// Login verifies a password and returns a session. Unknown accounts,
// passwordless accounts and wrong passwords all cost one hash verification and
// return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, rawEmail, pw string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(rawEmail)
	if err != nil {
		e.hasher.DummyVerify(pw)
		return nil, e.loginFailure(ctx, "", "", ErrInvalidCredentials)
	}
	if err := e.checkRate(ctx, e.loginLimiter, scopeLogin, email); err != nil {
		return nil, err
	}

	cred, err := e.credentials.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.Error("credential lookup failed", zap.String("email", email), zap.Error(err))
			return nil, err
		}
		e.hasher.DummyVerify(pw)
		return nil, e.loginFailure(ctx, "", email, ErrInvalidCredentials)
	}
	if cred.PasswordHash == "" {
		e.hasher.DummyVerify(pw)
		return nil, e.loginFailure(ctx, cred.ID, email, ErrInvalidCredentials)
	}

	ok, err := e.hasher.Verify(pw, cred.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		e.logger.Warn("stored password hash unreadable", zap.String("user_id", cred.ID), zap.Error(err))
		return nil, e.loginFailure(ctx, cred.ID, email, ErrInvalidCredentials)
	}
	if err != nil || !ok {
		return nil, e.loginFailure(ctx, cred.ID, email, ErrInvalidCredentials)
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(cred.PasswordHash) {
		e.rehash(ctx, cred, pw)
	}

	result, err := e.mintToken(cred)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, cred.ID, email, nil, nil)
	return result, nil
}

// rehash replaces a legacy bcrypt hash with argon2id. Failures leave the old
// hash in place.
func (e *Engine) rehash(ctx context.Context, cred *Credential, pw string) {
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", cred.ID), zap.Error(err))
		return
	}
	if err := e.credentials.SetPasswordHash(ctx, cred.ID, hash); err != nil {
		e.logger.Warn("password rehash store failed", zap.String("user_id", cred.ID), zap.Error(err))
		return
	}
	cred.PasswordHash = hash
}

func (e *Engine) loginFailure(ctx context.Context, userID, email string, err error) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, email, err, nil)
	return err
}
