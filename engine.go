package carebook

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/carebook/internal/rate"
	"github.com/MrEthical07/carebook/internal/stores"
	"github.com/MrEthical07/carebook/jwt"
	"github.com/MrEthical07/carebook/password"
	"github.com/MrEthical07/carebook/permission"
	"go.uber.org/zap"
)

// Engine runs the authentication flows. It is safe for concurrent use once
// built; all cross-request coordination happens in Redis.
type Engine struct {
	config       Config
	logger       *zap.Logger
	clock        func() time.Time
	credentials  CredentialStore
	mailer       EmailGateway
	roles        *permission.RoleManager
	otps         *stores.OTPLedger
	links        *stores.MagicLinkLedger
	limiter      *rate.SlidingWindow
	loginLimiter *rate.SlidingWindow
	hasher       *password.Hasher
	jwtManager   *jwt.Manager
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Roles exposes the frozen role table for the HTTP permission gate.
func (e *Engine) Roles() *permission.RoleManager {
	return e.roles
}

// Prune drops ledger index entries whose expiry is older than the configured
// retention. The sweeper calls it on a schedule.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	if e == nil || e.otps == nil || e.links == nil {
		return 0, ErrEngineNotReady
	}
	cutoff := e.now().Add(-e.config.Store.Retention)

	otps, err := e.otps.Prune(ctx, cutoff)
	if err != nil {
		return otps, mapLedgerError(err)
	}
	links, err := e.links.Prune(ctx, cutoff)
	if err != nil {
		return otps + links, mapLedgerError(err)
	}
	return otps + links, nil
}

// ValidateToken checks signature and expiry only. Role changes take effect
// when the holder next signs in.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		e.metricInc(MetricTokenValidateFailure)
		return nil, ErrTokenInvalid
	}

	out := &Claims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   Role(claims.Role),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Profile returns the public projection of the account with the given id.
func (e *Engine) Profile(ctx context.Context, userID string) (*User, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	c, err := e.credentials.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := publicUser(c)
	return &u, nil
}

func (e *Engine) mintToken(c *Credential) (*AuthResult, error) {
	token, expiresAt, err := e.jwtManager.Issue(c.ID, c.Email, string(c.Role), e.now())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      publicUser(c),
	}, nil
}

// checkRate consults limiter before anything else touches the account, so
// the outcome never depends on whether the email is registered.
func (e *Engine) checkRate(ctx context.Context, limiter *rate.SlidingWindow, scope, email string) error {
	decision, err := limiter.CheckAndConsume(ctx, scope, email, e.now())
	if err != nil {
		e.logger.Error("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
		return mapLedgerError(err)
	}
	if decision.Allowed {
		return nil
	}

	rlErr := &RateLimitError{
		RemainingTime: decision.RemainingTime,
		Message:       decision.Message,
	}
	e.emitRateLimit(ctx, scope, email, rlErr)
	return rlErr
}

func (e *Engine) send(ctx context.Context, email, template string, data map[string]string) error {
	if err := e.mailer.Send(ctx, email, template, data); err != nil {
		e.metricInc(MetricEmailDeliveryFailure)
		e.logger.Warn("email delivery failed",
			zap.String("template", template),
			zap.String("email", email),
			zap.Error(err),
		)
		e.emitAudit(ctx, auditEventEmailDeliveryFailure, false, "", email, ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"template": template}
		})
		return err
	}
	return nil
}

// stampVerified sets verified-at once and sends the welcome email to the
// caller that set it. Failures here never fail the sign-in.
func (e *Engine) stampVerified(ctx context.Context, c *Credential) {
	if !c.VerifiedAt.IsZero() {
		return
	}
	now := e.now()
	first, err := e.credentials.MarkVerified(ctx, c.ID, now)
	if err != nil {
		e.logger.Warn("mark verified failed", zap.String("user_id", c.ID), zap.Error(err))
		return
	}
	if !first {
		return
	}
	c.VerifiedAt = now
	e.emitAudit(ctx, auditEventAccountVerified, true, c.ID, c.Email, nil, nil)
	_ = e.send(ctx, c.Email, TemplateWelcome, map[string]string{"name": c.Name})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.mailer == nil || e.otps == nil ||
		e.links == nil || e.jwtManager == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

// normalizeEmail trims and lower-cases email and rejects anything that is
// not a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
