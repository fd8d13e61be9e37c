package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCredentialCreateAndGet(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")
	ctx := context.Background()

	created, err := store.Create(ctx, Credential{Email: "a@example.com", Name: "Ada", Role: "user"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", created)
	}

	got, err := store.GetByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got.ID != created.ID || got.Name != "Ada" || got.Role != "user" {
		t.Fatalf("unexpected credential %+v", got)
	}
	if !got.VerifiedAt.IsZero() {
		t.Fatal("new credential must be unverified")
	}
	if got.PasswordHash != "" {
		t.Fatal("no password hash was set")
	}
}

func TestCredentialEmailUnique(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, Credential{Email: "dup@example.com", Role: "user"})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrCredentialExists):
			default:
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly one credential, got %d", created.Load())
	}
}

func TestCredentialMarkVerifiedOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")
	ctx := context.Background()

	c, err := store.Create(ctx, Credential{Email: "a@example.com", Role: "user"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := store.MarkVerified(ctx, c.ID, time.Now())
	if err != nil || !first {
		t.Fatalf("first MarkVerified: first=%v err=%v", first, err)
	}
	again, err := store.MarkVerified(ctx, c.ID, time.Now().Add(time.Hour))
	if err != nil || again {
		t.Fatalf("second MarkVerified must not stamp: first=%v err=%v", again, err)
	}

	got, err := store.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.VerifiedAt.IsZero() {
		t.Fatal("expected verified_at to be set")
	}

	if _, err := store.MarkVerified(ctx, "missing", time.Now()); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCredentialSetRole(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")
	ctx := context.Background()

	c, err := store.Create(ctx, Credential{Email: "a@example.com", Role: "user"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetRole(ctx, c.ID, "counselor"); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	got, err := store.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Role != "counselor" {
		t.Fatalf("expected counselor, got %q", got.Role)
	}

	if err := store.SetRole(ctx, "missing", "admin"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCredentialSetPasswordHash(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")
	ctx := context.Background()

	c, err := store.Create(ctx, Credential{Email: "b@example.com", Role: "user", PasswordHash: "$2a$old"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetPasswordHash(ctx, c.ID, "$argon2id$new"); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	got, err := store.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Fatalf("unexpected hash %q", got.PasswordHash)
	}
	if err := store.SetPasswordHash(ctx, "missing", "x"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCredentialNotFound(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewCredentialStore(rdb, "")

	if _, err := store.GetByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
