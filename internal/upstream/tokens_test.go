package upstream

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStorePartialUpdate(t *testing.T) {
	s := NewMemoryStore()
	s.SetTokens(TokenPair{Access: "a1", Refresh: "r1"})

	// Empty fields leave stored values alone.
	s.SetTokens(TokenPair{Access: "a2"})
	if s.Access() != "a2" || s.Refresh() != "r1" {
		t.Fatalf("partial update corrupted store: access=%q refresh=%q", s.Access(), s.Refresh())
	}

	s.Clear()
	if s.Access() != "" || s.Refresh() != "" {
		t.Fatal("Clear must empty both tokens")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.Access() != "" || s.Refresh() != "" {
		t.Fatal("fresh store must be empty")
	}

	s.SetTokens(TokenPair{Access: "a1", Refresh: "r1"})

	// A second store over the same path sees the persisted pair.
	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if s2.Access() != "a1" || s2.Refresh() != "r1" {
		t.Fatalf("persisted tokens lost: access=%q refresh=%q", s2.Access(), s2.Refresh())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file permissions = %o, want 600", perm)
	}
}

func TestFileStorePartialUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.SetTokens(TokenPair{Access: "a1", Refresh: "r1"})
	s.SetTokens(TokenPair{Access: "a2"})

	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if s2.Access() != "a2" || s2.Refresh() != "r1" {
		t.Fatalf("partial update persisted wrong: access=%q refresh=%q", s2.Access(), s2.Refresh())
	}
}

func TestFileStoreClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.SetTokens(TokenPair{Access: "a1", Refresh: "r1"})
	s.Clear()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("token file must be removed on Clear, stat err = %v", err)
	}
	if s.Access() != "" || s.Refresh() != "" {
		t.Fatal("Clear must empty both tokens")
	}
}

func TestFileStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("corrupt file must not fail the load: %v", err)
	}
	if s.Access() != "" || s.Refresh() != "" {
		t.Fatal("corrupt file must load as empty store")
	}
}
