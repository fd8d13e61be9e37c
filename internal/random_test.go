package internal

import (
	"encoding/base64"
	"strconv"
	"testing"
)

func TestNewOTPCodeRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		code, err := NewOTPCode()
		if err != nil {
			t.Fatalf("NewOTPCode: %v", err)
		}
		if !ValidOTPFormat(code) {
			t.Fatalf("code %q is not six digits", code)
		}
		n, _ := strconv.Atoi(code)
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d outside [100000, 999999]", n)
		}
	}
}

// Ten equal buckets over the code range; chi-square with 9 degrees of
// freedom stays under 33.72 (p = 0.0001) for a uniform source.
func TestNewOTPCodeUniformity(t *testing.T) {
	const (
		samples  = 10000
		buckets  = 10
		critical = 33.72
	)

	var counts [buckets]int
	for i := 0; i < samples; i++ {
		code, err := NewOTPCode()
		if err != nil {
			t.Fatalf("NewOTPCode: %v", err)
		}
		n, _ := strconv.Atoi(code)
		counts[(n-100000)*buckets/900000]++
	}

	expected := float64(samples) / buckets
	var chi float64
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}
	if chi > critical {
		t.Fatalf("chi-square %.2f exceeds %.2f, counts=%v", chi, critical, counts)
	}
}

func TestValidOTPFormat(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		" 123456": false,
		"１２３４５６": false,
		"":        false,
	}
	for in, want := range cases {
		if got := ValidOTPFormat(in); got != want {
			t.Errorf("ValidOTPFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewMagicTokenShape(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		tok, err := NewMagicToken()
		if err != nil {
			t.Fatalf("NewMagicToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token %q is not base64url: %v", tok, err)
		}
		if len(raw) != 32 {
			t.Fatalf("expected 32 raw bytes, got %d", len(raw))
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate magic token")
		}
		seen[tok] = struct{}{}
	}
}

func TestHashSecretStable(t *testing.T) {
	a := HashSecret("123456")
	if a != HashSecret("123456") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashSecret("123457") {
		t.Fatal("distinct secrets must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}

func FuzzValidOTPFormat(f *testing.F) {
	f.Add("123456")
	f.Add("")
	f.Add("abcdef")
	f.Add("9999999")

	f.Fuzz(func(t *testing.T, input string) {
		if !ValidOTPFormat(input) {
			return
		}
		if _, err := strconv.Atoi(input); err != nil {
			t.Fatalf("accepted %q but it does not parse: %v", input, err)
		}
		if len(input) != 6 {
			t.Fatalf("accepted %q with length %d", input, len(input))
		}
	})
}
