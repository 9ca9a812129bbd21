package session

import (
	"context"
	"testing"
	"time"

	"reportmitra.org/internal/upstream"
)

func TestBoundStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := NewID()
	_ = store.Create(ctx, Session{
		ID:        id,
		Tokens:    upstream.TokenPair{Access: "a1", Refresh: "r1"},
		ExpiresAt: time.Now().Add(time.Hour),
	})

	bound := Bind(store, id)
	if bound.Access() != "a1" || bound.Refresh() != "r1" {
		t.Fatalf("bound view out of sync: access=%q refresh=%q", bound.Access(), bound.Refresh())
	}

	// Writes through the bound view land in the session record.
	bound.SetTokens(upstream.TokenPair{Access: "a2"})
	sess, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Tokens.Access != "a2" || sess.Tokens.Refresh != "r1" {
		t.Fatalf("partial write corrupted session: %+v", sess.Tokens)
	}

	bound.Clear()
	if bound.Access() != "" || bound.Refresh() != "" {
		t.Fatal("cleared view must read empty")
	}
	if _, err := store.Get(ctx, id); err != nil {
		t.Fatalf("session record must survive a token clear: %v", err)
	}
}

func TestBoundStoreUnknownSessionReadsEmpty(t *testing.T) {
	bound := Bind(NewMemoryStore(), "missing")
	if bound.Access() != "" || bound.Refresh() != "" {
		t.Fatal("unknown session must read as empty tokens")
	}
}
