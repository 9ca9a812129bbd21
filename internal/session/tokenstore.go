package session

import (
	"context"

	"reportmitra.org/internal/upstream"
)

// boundStore projects one session's tokens as an upstream.TokenStore, so the
// authenticated client refreshes and clears against the shared session
// record. Store failures read as an empty token, which the client then
// reports as an auth failure.
type boundStore struct {
	store Store
	id    string
}

// Bind returns the TokenStore view of the given session.
func Bind(store Store, id string) upstream.TokenStore {
	return &boundStore{store: store, id: id}
}

func (b *boundStore) Access() string {
	sess, err := b.store.Get(context.Background(), b.id)
	if err != nil {
		return ""
	}
	return sess.Tokens.Access
}

func (b *boundStore) Refresh() string {
	sess, err := b.store.Get(context.Background(), b.id)
	if err != nil {
		return ""
	}
	return sess.Tokens.Refresh
}

func (b *boundStore) SetTokens(pair upstream.TokenPair) {
	_ = b.store.SetTokens(context.Background(), b.id, pair)
}

func (b *boundStore) Clear() {
	_ = b.store.ClearTokens(context.Background(), b.id)
}
