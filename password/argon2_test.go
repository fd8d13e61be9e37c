package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	oldHasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}
	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := testConfig()
	stronger.Time = 2
	newHasher, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	needsUpgrade, err := newHasher.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if !needsUpgrade {
		t.Fatal("expected NeedsUpgrade to return true for weaker hash parameters")
	}

	needsUpgrade, err = oldHasher.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if needsUpgrade {
		t.Fatal("expected NeedsUpgrade to return false for current parameters")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Verify("password", "not-a-phc-hash"); err == nil {
		t.Fatal("expected malformed hash verification to fail")
	}

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("version-test", wrongVersion); err == nil {
		t.Fatal("expected unsupported version verification to fail")
	}
}

func TestHashLengthBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLength = 64
	hasher, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := hasher.Hash(exact)
	if err != nil {
		t.Fatalf("expected exactly-max password to be accepted: %v", err)
	}
	if _, err := hasher.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to reject long input, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}

	cfg = testConfig()
	cfg.MinLength = 0
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected zero min length to be rejected")
	}
}
