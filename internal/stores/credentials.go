package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

var (
	ErrCredentialNotFound         = errors.New("credential not found")
	ErrCredentialExists           = errors.New("credential email already registered")
	ErrCredentialRedisUnavailable = errors.New("credential redis unavailable")
)

// Credential is the stored account document.
type Credential struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Role         string
	PasswordHash string
	Image        string
	VerifiedAt   time.Time
	CreatedAt    time.Time
}

// CredentialStore keeps one hash per account plus an email uniqueness index.
type CredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCredentialStore creates a store with the given key prefix.
func NewCredentialStore(redisClient redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = "cred"
	}
	return &CredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CredentialStore) recordKey(id string) string {
	return s.prefix + ":" + id
}

func (s *CredentialStore) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

// createCredentialLua claims the email index and writes the document in one
// step, so a reader never sees an index entry without its document.
// KEYS[1] = email index key
// KEYS[2] = record key
// ARGV[1] = credential id
// ARGV[2...] = field/value pairs
//
// Returns 1 when created, 0 when the email is taken.
var createCredentialLua = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 2))
return 1
`)

// Create claims the email and writes the document. The returned credential
// carries the generated ID and creation time.
func (s *CredentialStore) Create(ctx context.Context, c Credential) (*Credential, error) {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	args := []interface{}{c.ID}
	for field, value := range credentialFields(&c) {
		args = append(args, field, value)
	}

	created, err := createCredentialLua.Run(ctx, s.redis,
		[]string{s.emailKey(c.Email), s.recordKey(c.ID)},
		args...,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	if created == 0 {
		return nil, ErrCredentialExists
	}
	return &c, nil
}

// GetByEmail resolves the email index and loads the document.
func (s *CredentialStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// GetByID loads a document by its ID.
func (s *CredentialStore) GetByID(ctx context.Context, id string) (*Credential, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrCredentialNotFound
	}
	return &Credential{
		ID:           fields["id"],
		Email:        fields["email"],
		Name:         fields["name"],
		Phone:        fields["phone"],
		Role:         fields["role"],
		PasswordHash: fields["password_hash"],
		Image:        fields["image"],
		VerifiedAt:   parseMillis(fields["verified_at"]),
		CreatedAt:    parseMillis(fields["created_at"]),
	}, nil
}

// MarkVerified stamps verified_at once. It reports true only for the call
// that set it.
func (s *CredentialStore) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	exists, err := s.redis.Exists(ctx, s.recordKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	if exists == 0 {
		return false, ErrCredentialNotFound
	}

	set, err := s.redis.HSetNX(ctx, s.recordKey(id), "verified_at", strconv.FormatInt(at.UnixMilli(), 10)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	return set, nil
}

// SetRole overwrites the role field of an existing document.
func (s *CredentialStore) SetRole(ctx context.Context, id, role string) error {
	return s.setField(ctx, id, "role", role)
}

// SetPasswordHash replaces the stored password hash of an existing document.
func (s *CredentialStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.setField(ctx, id, "password_hash", hash)
}

func (s *CredentialStore) setField(ctx context.Context, id, field, value string) error {
	key := s.recordKey(id)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrCredentialNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, value)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	return nil
}

func credentialFields(c *Credential) map[string]string {
	fields := map[string]string{
		"id":         c.ID,
		"email":      c.Email,
		"name":       c.Name,
		"phone":      c.Phone,
		"role":       c.Role,
		"created_at": strconv.FormatInt(c.CreatedAt.UnixMilli(), 10),
	}
	if c.PasswordHash != "" {
		fields["password_hash"] = c.PasswordHash
	}
	if c.Image != "" {
		fields["image"] = c.Image
	}
	if !c.VerifiedAt.IsZero() {
		fields["verified_at"] = strconv.FormatInt(c.VerifiedAt.UnixMilli(), 10)
	}
	return fields
}
