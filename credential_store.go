package carebook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/carebook/internal/stores"
	"github.com/redis/go-redis/v9"
)

// redisCredentialStore adapts stores.CredentialStore to CredentialStore and
// maps its errors onto the public sentinels.
type redisCredentialStore struct {
	store *stores.CredentialStore
}

// NewRedisCredentialStore returns the Redis-backed CredentialStore used when
// the Builder is not given one.
func NewRedisCredentialStore(rdb redis.UniversalClient, prefix string) CredentialStore {
	return &redisCredentialStore{store: stores.NewCredentialStore(rdb, prefix)}
}

func (s *redisCredentialStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	c, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, mapCredentialStoreError(err)
	}
	return fromStoredCredential(c), nil
}

func (s *redisCredentialStore) GetByID(ctx context.Context, id string) (*Credential, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mapCredentialStoreError(err)
	}
	return fromStoredCredential(c), nil
}

func (s *redisCredentialStore) Create(ctx context.Context, c Credential) (*Credential, error) {
	created, err := s.store.Create(ctx, stores.Credential{
		ID:           c.ID,
		Email:        c.Email,
		Name:         c.Name,
		Phone:        c.Phone,
		Role:         string(c.Role),
		PasswordHash: c.PasswordHash,
		Image:        c.Image,
		VerifiedAt:   c.VerifiedAt,
		CreatedAt:    c.CreatedAt,
	})
	if err != nil {
		return nil, mapCredentialStoreError(err)
	}
	return fromStoredCredential(created), nil
}

func (s *redisCredentialStore) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	set, err := s.store.MarkVerified(ctx, id, at)
	if err != nil {
		return false, mapCredentialStoreError(err)
	}
	return set, nil
}

func (s *redisCredentialStore) SetRole(ctx context.Context, id string, role Role) error {
	return mapCredentialStoreError(s.store.SetRole(ctx, id, string(role)))
}

func (s *redisCredentialStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	return mapCredentialStoreError(s.store.SetPasswordHash(ctx, id, hash))
}

func fromStoredCredential(c *stores.Credential) *Credential {
	return &Credential{
		ID:           c.ID,
		Email:        c.Email,
		Name:         c.Name,
		Phone:        c.Phone,
		Role:         Role(c.Role),
		PasswordHash: c.PasswordHash,
		Image:        c.Image,
		VerifiedAt:   c.VerifiedAt,
		CreatedAt:    c.CreatedAt,
	}
}

func mapCredentialStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCredentialNotFound):
		return ErrUserNotFound
	case errors.Is(err, stores.ErrCredentialExists):
		return ErrAccountExists
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapLedgerError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
