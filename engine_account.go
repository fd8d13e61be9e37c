package carebook

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/carebook/password"
	"go.uber.org/zap"
)

// Signup creates a password account and signs it in. The welcome email is
// best-effort.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", email, ErrInvalidRequest, func() map[string]string {
			return map[string]string{"reason": "empty_name"}
		})
		return nil, ErrInvalidRequest
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		reason := "hash_failed"
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			reason = "password_policy"
		}
		e.emitAudit(ctx, auditEventSignupFailure, false, "", email, ErrInvalidRequest, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		if reason == "password_policy" {
			return nil, ErrInvalidRequest
		}
		return nil, err
	}
	req.Password = ""

	cred, err := e.credentials.Create(ctx, Credential{
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         RoleUser,
		PasswordHash: hash,
		CreatedAt:    e.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", email, ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		e.logger.Error("credential create failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	_ = e.send(ctx, email, TemplateWelcome, map[string]string{"name": name})

	result, err := e.mintToken(cred)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, cred.ID, email, nil, nil)
	return result, nil
}

// findOrCreateMinimalAccount returns the account for email, creating an
// unverified user-role account when there is none. A concurrent create for
// the same email resolves to the winner's account.
func (e *Engine) findOrCreateMinimalAccount(ctx context.Context, email string) (*Credential, error) {
	cred, err := e.credentials.GetByEmail(ctx, email)
	if err == nil {
		return cred, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	cred, err = e.credentials.Create(ctx, Credential{
		Email:     email,
		Name:      defaultDisplayName(email),
		Role:      RoleUser,
		CreatedAt: e.now(),
	})
	if errors.Is(err, ErrAccountExists) {
		return e.credentials.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountProvisioned)
	e.emitAudit(ctx, auditEventAccountProvisioned, true, cred.ID, email, nil, func() map[string]string {
		return map[string]string{"role": string(cred.Role)}
	})
	return cred, nil
}

// SetRole changes the role of the account registered under email. Tokens
// already issued keep the old role until they expire.
func (e *Engine) SetRole(ctx context.Context, rawEmail string, role Role) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrRoleInvalid
	}

	cred, err := e.credentials.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	previous := cred.Role
	if err := e.credentials.SetRole(ctx, cred.ID, role); err != nil {
		return nil, err
	}
	cred.Role = role

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditEventRoleChanged, true, cred.ID, email, nil, func() map[string]string {
		return map[string]string{
			"from": string(previous),
			"to":   string(role),
		}
	})
	u := publicUser(cred)
	return &u, nil
}

func defaultDisplayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
