package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any failure talking to Redis.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)

// Config holds sliding-window tuning parameters.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Prefix      string
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed       bool
	RemainingTime time.Duration
	Message       string
}

// slidingWindowLua trims, counts and records in one step.
// KEYS[1] = window key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = max requests
// ARGV[4] = unique member for this attempt
// ARGV[5] = cutoff (now - window, unix ms)
//
// Returns {1, 0} when the attempt was recorded, {0, remainingMs} otherwise.
var slidingWindowLua = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[5])

local count = redis.call('ZCARD', key)
if count >= limit then
  local remaining = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    remaining = tonumber(oldest[2]) + window - now
  end
  if remaining < 1 then
    remaining = 1
  end
  return {0, remaining}
end

redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[2])
return {1, 0}
`)

// SlidingWindow throttles attempts per (scope, email) pair.
type SlidingWindow struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [SlidingWindow] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *SlidingWindow {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &SlidingWindow{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckAndConsume records an attempt for email under scope when the window has
// room, and otherwise reports the time until the oldest attempt expires.
// A nil limiter or a non-positive MaxRequests allows everything.
func (l *SlidingWindow) CheckAndConsume(ctx context.Context, scope, email string, now time.Time) (Decision, error) {
	if l == nil || l.config.MaxRequests <= 0 || l.config.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	nowMs := now.UnixMilli()
	windowMs := l.config.Window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	res, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.key(scope, email)},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(windowMs, 10),
		strconv.Itoa(l.config.MaxRequests),
		member,
		strconv.FormatInt(nowMs-windowMs, 10),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}

	remaining := time.Duration(res[1]) * time.Millisecond
	return Decision{
		Allowed:       false,
		RemainingTime: remaining,
		Message:       retryMessage(remaining),
	}, nil
}

// Attempts returns how many attempts are currently inside the window. An
// attempt exactly one window old still counts, as it does in CheckAndConsume.
func (l *SlidingWindow) Attempts(ctx context.Context, scope, email string, now time.Time) (int, error) {
	if l == nil || l.config.Window <= 0 {
		return 0, nil
	}
	cutoff := now.UnixMilli() - l.config.Window.Milliseconds()
	count, err := l.redis.ZCount(ctx, l.key(scope, email), strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *SlidingWindow) key(scope, email string) string {
	return l.config.Prefix + ":" + scope + ":{" + email + "}"
}

func retryMessage(remaining time.Duration) string {
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "Too many requests. Please try again in 1 minute."
	}
	return "Too many requests. Please try again in " + strconv.Itoa(minutes) + " minutes."
}
