package carebook

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/MrEthical07/carebook/internal"
	"github.com/MrEthical07/carebook/internal/stores"
	"go.uber.org/zap"
)

const (
	scopeMagicLink = "magic"

	msgMagicLinkSent = "If an account exists for this email, a sign-in link has been sent."
)

// RequestMagicLink emails a single-use sign-in link to an existing account.
// Unknown emails get ErrUserNotFound when MagicLinkConfig.RevealUnknownAccount
// is set, and the generic message otherwise.
func (e *Engine) RequestMagicLink(ctx context.Context, rawEmail string) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if err := e.checkRate(ctx, e.limiter, scopeMagicLink, email); err != nil {
		return nil, err
	}

	result := &IssueResult{Message: msgMagicLinkSent, ExpiresIn: e.config.MagicLink.TTL}

	cred, err := e.credentials.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventMagicLinkRequested, false, "", email, err, nil)
			if e.config.MagicLink.RevealUnknownAccount {
				return nil, ErrUserNotFound
			}
			return result, nil
		}
		e.logger.Error("credential lookup failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	token, err := internal.NewMagicToken()
	if err != nil {
		return nil, err
	}
	_, err = e.links.Issue(ctx, email, internal.HashSecret(token), e.now(), e.config.MagicLink.TTL, e.config.MagicLink.SupersedePrevious)
	if err != nil {
		e.logger.Error("magic link issue failed", zap.String("email", email), zap.Error(err))
		return nil, mapLedgerError(err)
	}

	// Delivery failures are logged by send; the link stays valid.
	sendErr := e.send(ctx, email, TemplateMagicLink, map[string]string{
		"link":             e.magicLinkURL(token),
		"expiresInMinutes": strconv.Itoa(int(e.config.MagicLink.TTL / time.Minute)),
	})

	e.metricInc(MetricMagicLinkRequested)
	e.emitAudit(ctx, auditEventMagicLinkRequested, true, cred.ID, email, nil, func() map[string]string {
		if sendErr != nil {
			return map[string]string{"delivery": "failed"}
		}
		return map[string]string{"delivery": "sent"}
	})
	return result, nil
}

// VerifyMagicLink consumes token and returns a session for its account.
func (e *Engine) VerifyMagicLink(ctx context.Context, token string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeVerify(start)

	if token == "" || len(token) > 512 {
		return nil, e.magicLinkFailure(ctx, "", ErrMagicLinkInvalid)
	}

	now := e.now()
	tokenHash := internal.HashSecret(token)
	record, err := e.links.FindActive(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, stores.ErrMagicLinkNotFound) {
			return nil, e.magicLinkFailure(ctx, "", ErrMagicLinkInvalid)
		}
		e.logger.Error("magic link lookup failed", zap.Error(err))
		return nil, mapLedgerError(err)
	}

	cred, err := e.credentials.GetByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.magicLinkFailure(ctx, record.Email, ErrUserNotFound)
		}
		return nil, err
	}

	won, err := e.links.MarkUsed(ctx, record.Email, tokenHash, now)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if !won {
		return nil, e.magicLinkFailure(ctx, record.Email, ErrMagicLinkInvalid)
	}

	e.stampVerified(ctx, cred)

	result, err := e.mintToken(cred)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMagicLinkVerifySuccess)
	e.emitAudit(ctx, auditEventMagicLinkSuccess, true, cred.ID, cred.Email, nil, nil)
	return result, nil
}

func (e *Engine) magicLinkURL(token string) string {
	u, err := url.Parse(e.config.MagicLink.BaseURL)
	if err != nil {
		return e.config.MagicLink.BaseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *Engine) magicLinkFailure(ctx context.Context, email string, err error) error {
	e.metricInc(MetricMagicLinkVerifyFailure)
	e.emitAudit(ctx, auditEventMagicLinkFailure, false, "", email, err, nil)
	return err
}
