package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrMagicLinkNotFound         = errors.New("magic link not found")
	ErrMagicLinkRedisUnavailable = errors.New("magic link redis unavailable")
)

// MagicLinkRecord is one issued sign-in link. TokenHash is the hex SHA-256
// of the token sent to the user.
type MagicLinkRecord struct {
	TokenHash string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    string
}

// Used reports whether the link has left the active state.
func (r *MagicLinkRecord) Used() bool {
	return r.Status != StatusActive
}

// issueMagicLinkLua optionally supersedes the active links of the email and
// stores the new one.
// KEYS[1] = per-email index zset
// KEYS[2] = new record hash
// ARGV[1] = record key prefix
// ARGV[2] = token hash
// ARGV[3] = email
// ARGV[4] = created at (unix ms)
// ARGV[5] = expires at (unix ms)
// ARGV[6] = key ttl (ms)
// ARGV[7] = "1" to supersede earlier links
var issueMagicLinkLua = redis.NewScript(`
local superseded = 0
if ARGV[7] == '1' then
  local members = redis.call('ZRANGE', KEYS[1], 0, -1)
  for _, h in ipairs(members) do
    local rk = ARGV[1] .. h
    if redis.call('HGET', rk, 'status') == 'active' then
      redis.call('HSET', rk, 'status', 'superseded')
      superseded = superseded + 1
    end
  end
end

redis.call('HSET', KEYS[2],
  'token_hash', ARGV[2],
  'email', ARGV[3],
  'created_at', ARGV[4],
  'expires_at', ARGV[5],
  'status', 'active')
redis.call('PEXPIRE', KEYS[2], ARGV[6])
redis.call('ZADD', KEYS[1], ARGV[5], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return superseded
`)

// MagicLinkLedger persists issued magic links.
type MagicLinkLedger struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewMagicLinkLedger creates a ledger with the given key prefix.
func NewMagicLinkLedger(redisClient redis.UniversalClient, prefix string, retention time.Duration) *MagicLinkLedger {
	if prefix == "" {
		prefix = "ml"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MagicLinkLedger{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (l *MagicLinkLedger) emailPrefix(email string) string {
	return l.prefix + ":{" + email + "}:"
}

func (l *MagicLinkLedger) indexKey(email string) string {
	return l.emailPrefix(email) + "idx"
}

func (l *MagicLinkLedger) recordKey(email, tokenHash string) string {
	return l.emailPrefix(email) + "tok:" + tokenHash
}

// pointerKey maps a token hash to its email so links resolve without the
// caller knowing who they belong to.
func (l *MagicLinkLedger) pointerKey(tokenHash string) string {
	return l.prefix + ":ptr:" + tokenHash
}

// Issue stores an active link for email. When supersede is set, earlier
// active links for the same email stop working.
func (l *MagicLinkLedger) Issue(
	ctx context.Context,
	email, tokenHash string,
	now time.Time,
	ttl time.Duration,
	supersede bool,
) (*MagicLinkRecord, error) {
	record := &MagicLinkRecord{
		TokenHash: tokenHash,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    StatusActive,
	}
	keyTTL := ttl + l.retention

	// The pointer is written first; a pointer without a record resolves to
	// not found.
	if err := l.redis.Set(ctx, l.pointerKey(tokenHash), email, keyTTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkRedisUnavailable, err)
	}

	flag := "0"
	if supersede {
		flag = "1"
	}
	err := issueMagicLinkLua.Run(ctx, l.redis,
		[]string{l.indexKey(email), l.recordKey(email, tokenHash)},
		l.emailPrefix(email)+"tok:",
		tokenHash,
		email,
		strconv.FormatInt(record.CreatedAt.UnixMilli(), 10),
		strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(keyTTL.Milliseconds(), 10),
		flag,
	).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkRedisUnavailable, err)
	}
	return record, nil
}

// FindActive returns the link only when it is active and unexpired.
func (l *MagicLinkLedger) FindActive(ctx context.Context, tokenHash string, now time.Time) (*MagicLinkRecord, error) {
	record, err := l.lookup(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if record.Used() || !now.Before(record.ExpiresAt) {
		return nil, ErrMagicLinkNotFound
	}
	return record, nil
}

// MarkUsed moves the link from active to consumed and reports whether this
// call made the transition.
func (l *MagicLinkLedger) MarkUsed(ctx context.Context, email, tokenHash string, now time.Time) (bool, error) {
	n, err := markUsedLua.Run(ctx, l.redis,
		[]string{l.recordKey(email, tokenHash)},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMagicLinkRedisUnavailable, err)
	}
	return n == 1, nil
}

// Prune drops index entries whose expiry is before cutoff.
func (l *MagicLinkLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return pruneIndexes(ctx, l.redis, l.prefix+":{*}:idx", cutoff)
}

func (l *MagicLinkLedger) lookup(ctx context.Context, tokenHash string) (*MagicLinkRecord, error) {
	email, err := l.redis.Get(ctx, l.pointerKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMagicLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkRedisUnavailable, err)
	}

	fields, err := l.redis.HGetAll(ctx, l.recordKey(email, tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrMagicLinkNotFound
	}
	if subtle.ConstantTimeCompare([]byte(fields["token_hash"]), []byte(tokenHash)) != 1 {
		return nil, ErrMagicLinkNotFound
	}

	return &MagicLinkRecord{
		TokenHash: fields["token_hash"],
		Email:     fields["email"],
		CreatedAt: parseMillis(fields["created_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
		Status:    fields["status"],
	}, nil
}
