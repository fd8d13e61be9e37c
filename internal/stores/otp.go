package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Record states shared by the OTP and magic-link ledgers.
const (
	StatusActive     = "active"
	StatusConsumed   = "consumed"
	StatusSuperseded = "superseded"
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTPRecord is one issued code. CodeHash is the hex SHA-256 of the code.
type OTPRecord struct {
	ID        string
	Email     string
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    string
	Attempts  int
}

// Used reports whether the record has left the active state.
func (r *OTPRecord) Used() bool {
	return r.Status != StatusActive
}

// Expired reports whether now is at or past the expiry instant.
func (r *OTPRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// issueOTPLua supersedes every active record for the email and inserts the
// new one.
// KEYS[1] = per-email index zset
// KEYS[2] = new record hash
// KEYS[3] = code lookup key
// ARGV[1] = record key prefix (index members are appended to it)
// ARGV[2] = id
// ARGV[3] = email
// ARGV[4] = code hash
// ARGV[5] = created at (unix ms)
// ARGV[6] = expires at (unix ms)
// ARGV[7] = key ttl (ms)
//
// Returns the number of superseded records.
var issueOTPLua = redis.NewScript(`
local superseded = 0
local members = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(members) do
  local rk = ARGV[1] .. id
  if redis.call('HGET', rk, 'status') == 'active' then
    redis.call('HSET', rk, 'status', 'superseded')
    superseded = superseded + 1
  end
end

redis.call('HSET', KEYS[2],
  'id', ARGV[2],
  'email', ARGV[3],
  'code_hash', ARGV[4],
  'created_at', ARGV[5],
  'expires_at', ARGV[6],
  'status', 'active',
  'attempts', '0')
redis.call('PEXPIRE', KEYS[2], ARGV[7])
redis.call('ZADD', KEYS[1], ARGV[6], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[7])
redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[7])
return superseded
`)

// markUsedLua flips status from active to consumed unless the attempt
// counter has already reached the cap.
// KEYS[1] = record hash
// ARGV[1] = consumed at (unix ms)
// ARGV[2] = max attempts (0 disables the cap)
//
// Returns 1 when this call made the transition, 0 when the record was not
// active, -1 when the attempts cap was reached.
var markUsedLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'active' then
  return 0
end
local max = tonumber(ARGV[2])
if max > 0 then
  local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
  if attempts >= max then
    return -1
  end
end
redis.call('HSET', KEYS[1], 'status', 'consumed', 'consumed_at', ARGV[1])
return 1
`)

// incrementAttemptsLua bumps the attempt counter of an existing record only.
// KEYS[1] = record hash
//
// Returns the new count, or -1 when the record is gone.
var incrementAttemptsLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// OTPLedger persists issued codes per email.
type OTPLedger struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewOTPLedger creates a ledger. Records outlive their expiry by retention so
// that late submissions still resolve to "expired" rather than "not found".
func NewOTPLedger(redisClient redis.UniversalClient, prefix string, retention time.Duration) *OTPLedger {
	if prefix == "" {
		prefix = "otp"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &OTPLedger{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (l *OTPLedger) emailPrefix(email string) string {
	return l.prefix + ":{" + email + "}:"
}

func (l *OTPLedger) indexKey(email string) string {
	return l.emailPrefix(email) + "idx"
}

func (l *OTPLedger) recordKey(email, id string) string {
	return l.emailPrefix(email) + "rec:" + id
}

func (l *OTPLedger) codeKey(email, codeHash string) string {
	return l.emailPrefix(email) + "code:" + codeHash
}

// Issue supersedes any active record for email and stores a new active one.
func (l *OTPLedger) Issue(ctx context.Context, email, codeHash string, now time.Time, ttl time.Duration) (*OTPRecord, error) {
	record := &OTPRecord{
		ID:        uuid.NewString(),
		Email:     email,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    StatusActive,
	}
	keyTTL := ttl + l.retention

	err := issueOTPLua.Run(ctx, l.redis,
		[]string{l.indexKey(email), l.recordKey(email, record.ID), l.codeKey(email, codeHash)},
		l.emailPrefix(email)+"rec:",
		record.ID,
		email,
		codeHash,
		strconv.FormatInt(record.CreatedAt.UnixMilli(), 10),
		strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(keyTTL.Milliseconds(), 10),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return record, nil
}

// Lookup returns the record bound to email and codeHash in any state except
// superseded.
func (l *OTPLedger) Lookup(ctx context.Context, email, codeHash string) (*OTPRecord, error) {
	id, err := l.redis.Get(ctx, l.codeKey(email, codeHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	record, err := l.get(ctx, email, id)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(codeHash)) != 1 {
		return nil, ErrOTPNotFound
	}
	if record.Status == StatusSuperseded {
		return nil, ErrOTPNotFound
	}
	return record, nil
}

// FindActive returns the record only when it is active and unexpired.
func (l *OTPLedger) FindActive(ctx context.Context, email, codeHash string, now time.Time) (*OTPRecord, error) {
	record, err := l.Lookup(ctx, email, codeHash)
	if err != nil {
		return nil, err
	}
	if record.Used() || record.Expired(now) {
		return nil, ErrOTPNotFound
	}
	return record, nil
}

// Current returns the most recently issued record for email that is still
// active, expired or not.
func (l *OTPLedger) Current(ctx context.Context, email string) (*OTPRecord, error) {
	ids, err := l.redis.ZRevRange(ctx, l.indexKey(email), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	for _, id := range ids {
		record, err := l.get(ctx, email, id)
		if errors.Is(err, ErrOTPNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.Status == StatusActive {
			return record, nil
		}
	}
	return nil, ErrOTPNotFound
}

// MarkUsed moves the record from active to consumed. It reports false when the
// record was not active, so concurrent callers see exactly one winner.
func (l *OTPLedger) MarkUsed(ctx context.Context, email, id string, now time.Time) (bool, error) {
	return l.Consume(ctx, email, id, now, 0)
}

// Consume is MarkUsed with the attempt cap checked in the same script. It
// returns ErrOTPAttemptsExceeded when failed attempts reached maxAttempts
// before the transition, leaving the record active.
func (l *OTPLedger) Consume(ctx context.Context, email, id string, now time.Time, maxAttempts int) (bool, error) {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	n, err := markUsedLua.Run(ctx, l.redis,
		[]string{l.recordKey(email, id)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.Itoa(maxAttempts),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if n < 0 {
		return false, ErrOTPAttemptsExceeded
	}
	return n == 1, nil
}

// IncrementAttempts adds one failed attempt and returns the new total.
func (l *OTPLedger) IncrementAttempts(ctx context.Context, email, id string) (int, error) {
	n, err := incrementAttemptsLua.Run(ctx, l.redis, []string{l.recordKey(email, id)}).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if n < 0 {
		return 0, ErrOTPNotFound
	}
	return n, nil
}

// Prune drops index entries whose expiry is before cutoff across all emails
// and returns how many were removed.
func (l *OTPLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return pruneIndexes(ctx, l.redis, l.prefix+":{*}:idx", cutoff)
}

func (l *OTPLedger) get(ctx context.Context, email, id string) (*OTPRecord, error) {
	fields, err := l.redis.HGetAll(ctx, l.recordKey(email, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrOTPNotFound
	}

	record := &OTPRecord{
		ID:        fields["id"],
		Email:     fields["email"],
		CodeHash:  fields["code_hash"],
		CreatedAt: parseMillis(fields["created_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
		Status:    fields["status"],
	}
	record.Attempts, _ = strconv.Atoi(fields["attempts"])
	return record, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func pruneIndexes(ctx context.Context, rdb redis.UniversalClient, pattern string, cutoff time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	var removed int64

	iter := rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		n, err := rdb.ZRemRangeByScore(ctx, iter.Val(), "-inf", max).Result()
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", iter.Val(), err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
