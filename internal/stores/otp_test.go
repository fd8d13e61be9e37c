package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const otpTTL = 10 * time.Minute

func TestOTPIssueSupersedesPrevious(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	first, err := ledger.Issue(ctx, "a@example.com", "hash-1", now, otpTTL)
	if err != nil {
		t.Fatalf("Issue first: %v", err)
	}
	second, err := ledger.Issue(ctx, "a@example.com", "hash-2", now.Add(time.Second), otpTTL)
	if err != nil {
		t.Fatalf("Issue second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct record ids")
	}

	if _, err := ledger.Lookup(ctx, "a@example.com", "hash-1"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected superseded code to be not found, got %v", err)
	}
	if _, err := ledger.FindActive(ctx, "a@example.com", "hash-1", now); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected superseded code to be inactive, got %v", err)
	}

	got, err := ledger.FindActive(ctx, "a@example.com", "hash-2", now.Add(time.Second))
	if err != nil {
		t.Fatalf("FindActive second: %v", err)
	}
	if got.ID != second.ID || got.Status != StatusActive || got.Attempts != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestOTPAtMostOneActivePerEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ledger.Issue(ctx, "race@example.com", "hash-"+string(rune('a'+i)), now, otpTTL); err != nil {
				t.Errorf("Issue: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ids, err := rdb.ZRange(ctx, ledger.indexKey("race@example.com"), 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	active := 0
	for _, id := range ids {
		status, err := rdb.HGet(ctx, ledger.recordKey("race@example.com", id), "status").Result()
		if err != nil {
			t.Fatalf("HGet: %v", err)
		}
		if status == StatusActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active record, got %d of %d", active, len(ids))
	}
}

func TestOTPLookupAndExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	if _, err := ledger.Issue(ctx, "a@example.com", "hash-1", now, otpTTL); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := now.Add(otpTTL + time.Second)
	if _, err := ledger.FindActive(ctx, "a@example.com", "hash-1", later); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected expired code to be inactive, got %v", err)
	}
	rec, err := ledger.Lookup(ctx, "a@example.com", "hash-1")
	if err != nil {
		t.Fatalf("Lookup expired record: %v", err)
	}
	if !rec.Expired(later) {
		t.Fatal("expected record to report expired")
	}
	if rec.Expired(now) {
		t.Fatal("record should not be expired at issue time")
	}

	if _, err := ledger.Lookup(ctx, "b@example.com", "hash-1"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("codes must be bound to their email, got %v", err)
	}
}

func TestOTPMarkUsedOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	rec, err := ledger.Issue(ctx, "a@example.com", "hash-1", now, otpTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.MarkUsed(ctx, "a@example.com", rec.ID, now)
			if err != nil {
				t.Errorf("MarkUsed: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one winning MarkUsed, got %d", wins.Load())
	}

	got, err := ledger.Lookup(ctx, "a@example.com", "hash-1")
	if err != nil {
		t.Fatalf("Lookup consumed record: %v", err)
	}
	if !got.Used() || got.Status != StatusConsumed {
		t.Fatalf("expected consumed record, got %+v", got)
	}
	if _, err := ledger.Current(ctx, "a@example.com"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("consumed record must not be current, got %v", err)
	}
}

func TestOTPConsumeRespectsAttemptCap(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	rec, err := ledger.Issue(ctx, "a@example.com", "hash-1", now, otpTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ledger.IncrementAttempts(ctx, "a@example.com", rec.ID); err != nil {
			t.Fatalf("IncrementAttempts: %v", err)
		}
	}

	ok, err := ledger.Consume(ctx, "a@example.com", rec.ID, now, 3)
	if !errors.Is(err, ErrOTPAttemptsExceeded) || ok {
		t.Fatalf("expected attempts exceeded, got ok=%v err=%v", ok, err)
	}
	got, err := ledger.Lookup(ctx, "a@example.com", "hash-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("capped consume must leave the record active, got %q", got.Status)
	}

	ok, err = ledger.Consume(ctx, "a@example.com", rec.ID, now, 4)
	if err != nil || !ok {
		t.Fatalf("expected consume under a higher cap, got ok=%v err=%v", ok, err)
	}
}

func TestOTPIncrementAttempts(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()

	rec, err := ledger.Issue(ctx, "a@example.com", "hash-1", time.Now(), otpTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for want := 1; want <= 3; want++ {
		n, err := ledger.IncrementAttempts(ctx, "a@example.com", rec.ID)
		if err != nil {
			t.Fatalf("IncrementAttempts: %v", err)
		}
		if n != want {
			t.Fatalf("expected %d attempts, got %d", want, n)
		}
	}

	got, err := ledger.Lookup(ctx, "a@example.com", "hash-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Attempts != 3 {
		t.Fatalf("expected persisted attempts 3, got %d", got.Attempts)
	}

	if _, err := ledger.IncrementAttempts(ctx, "a@example.com", "missing"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected not found for missing record, got %v", err)
	}
}

func TestOTPCurrentReturnsNewestActive(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	now := time.Now()

	if _, err := ledger.Current(ctx, "a@example.com"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected no current record, got %v", err)
	}

	if _, err := ledger.Issue(ctx, "a@example.com", "hash-1", now, otpTTL); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := ledger.Issue(ctx, "a@example.com", "hash-2", now.Add(time.Minute), otpTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cur, err := ledger.Current(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != second.ID {
		t.Fatalf("expected newest record %s, got %s", second.ID, cur.ID)
	}
}

func TestOTPPrune(t *testing.T) {
	_, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	if _, err := ledger.Issue(ctx, "old@example.com", "hash-1", old, otpTTL); err != nil {
		t.Fatalf("Issue old: %v", err)
	}
	if _, err := ledger.Issue(ctx, "new@example.com", "hash-2", time.Now(), otpTTL); err != nil {
		t.Fatalf("Issue new: %v", err)
	}

	removed, err := ledger.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned entry, got %d", removed)
	}
	n, err := rdb.ZCard(ctx, ledger.indexKey("new@example.com")).Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if n != 1 {
		t.Fatalf("fresh index entry must survive, got %d", n)
	}
}

func TestOTPRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ledger := NewOTPLedger(rdb, "", 0)
	mr.Close()

	if _, err := ledger.Issue(context.Background(), "a@example.com", "h", time.Now(), otpTTL); !errors.Is(err, ErrOTPRedisUnavailable) {
		t.Fatalf("expected ErrOTPRedisUnavailable, got %v", err)
	}
}
