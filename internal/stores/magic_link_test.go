package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

const linkTTL = 15 * time.Minute

func TestMagicLinkIssueAndConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewMagicLinkLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	if _, err := ledger.Issue(ctx, "a@example.com", "tok-1", now, linkTTL, true); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec, err := ledger.FindActive(ctx, "tok-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if rec.Email != "a@example.com" {
		t.Fatalf("unexpected email %q", rec.Email)
	}

	ok, err := ledger.MarkUsed(ctx, rec.Email, rec.TokenHash, now)
	if err != nil || !ok {
		t.Fatalf("first MarkUsed: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.MarkUsed(ctx, rec.Email, rec.TokenHash, now)
	if err != nil || ok {
		t.Fatalf("second MarkUsed must lose: ok=%v err=%v", ok, err)
	}

	if _, err := ledger.FindActive(ctx, "tok-1", now); !errors.Is(err, ErrMagicLinkNotFound) {
		t.Fatalf("consumed link must not be active, got %v", err)
	}
}

func TestMagicLinkExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewMagicLinkLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	if _, err := ledger.Issue(ctx, "a@example.com", "tok-1", now, linkTTL, true); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.FindActive(ctx, "tok-1", now.Add(linkTTL)); !errors.Is(err, ErrMagicLinkNotFound) {
		t.Fatalf("expected expired link, got %v", err)
	}
}

func TestMagicLinkSupersession(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewMagicLinkLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	if _, err := ledger.Issue(ctx, "a@example.com", "tok-1", now, linkTTL, true); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.Issue(ctx, "a@example.com", "tok-2", now, linkTTL, true); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.FindActive(ctx, "tok-1", now); !errors.Is(err, ErrMagicLinkNotFound) {
		t.Fatalf("expected superseded link, got %v", err)
	}
	if _, err := ledger.FindActive(ctx, "tok-2", now); err != nil {
		t.Fatalf("latest link must be active: %v", err)
	}

	// Without supersession both links stay valid.
	if _, err := ledger.Issue(ctx, "b@example.com", "tok-3", now, linkTTL, false); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.Issue(ctx, "b@example.com", "tok-4", now, linkTTL, false); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for _, tok := range []string{"tok-3", "tok-4"} {
		if _, err := ledger.FindActive(ctx, tok, now); err != nil {
			t.Fatalf("%s should be active: %v", tok, err)
		}
	}
}

func TestMagicLinkUnknownToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewMagicLinkLedger(rdb, "", 0)

	if _, err := ledger.FindActive(context.Background(), "nope", time.Now()); !errors.Is(err, ErrMagicLinkNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMagicLinkPrune(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewMagicLinkLedger(rdb, "", 0)
	ctx := context.Background()

	if _, err := ledger.Issue(ctx, "a@example.com", "tok-old", time.Now().Add(-72*time.Hour), linkTTL, false); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	removed, err := ledger.Prune(ctx, time.Now())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
}
