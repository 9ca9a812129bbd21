package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	codec, err := NewCookieCodec("test-secret", time.Hour, "rm_session", false)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	id := NewID()
	value, err := codec.Mint(id)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	got, err := codec.Verify(value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != id {
		t.Fatalf("verify returned %q, want %q", got, id)
	}
}

func TestCookieCodecRejectsTamperedValue(t *testing.T) {
	codec, _ := NewCookieCodec("test-secret", time.Hour, "rm_session", false)
	value, err := codec.Mint(NewID())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d segments", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := codec.Verify(tampered); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie, got %v", err)
	}
}

func TestCookieCodecRejectsForeignSecret(t *testing.T) {
	mint, _ := NewCookieCodec("secret-one", time.Hour, "rm_session", false)
	verify, _ := NewCookieCodec("secret-two", time.Hour, "rm_session", false)

	value, err := mint.Mint(NewID())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verify.Verify(value); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie, got %v", err)
	}
}

func TestCookieCodecRejectsExpired(t *testing.T) {
	codec, _ := NewCookieCodec("test-secret", time.Millisecond, "rm_session", false)
	value, err := codec.Mint(NewID())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := codec.Verify(value); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie for expired cookie, got %v", err)
	}
}

func TestCookieCodecRejectsGarbage(t *testing.T) {
	codec, _ := NewCookieCodec("test-secret", time.Hour, "rm_session", false)
	for _, v := range []string{"", "  ", "not-a-jwt", "a.b.c"} {
		if _, err := codec.Verify(v); !errors.Is(err, ErrInvalidCookie) {
			t.Errorf("Verify(%q) = %v, want ErrInvalidCookie", v, err)
		}
	}
}

func TestNewCookieCodecValidation(t *testing.T) {
	if _, err := NewCookieCodec("", time.Hour, "rm_session", false); err == nil {
		t.Fatal("empty secret must be rejected")
	}
	if _, err := NewCookieCodec("s", 0, "rm_session", false); err == nil {
		t.Fatal("non-positive ttl must be rejected")
	}
	codec, err := NewCookieCodec("s", time.Hour, "", false)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.Name() != "rm_session" {
		t.Fatalf("default cookie name = %q", codec.Name())
	}
}
