package upstream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore is the persistent home of the two bearer tokens. SetTokens is a
// partial update: empty fields leave the stored value untouched. No expiry
// metadata is kept anywhere.
type TokenStore interface {
	Access() string
	Refresh() string
	SetTokens(pair TokenPair)
	Clear()
}

// MemoryStore keeps tokens for the lifetime of the process. The gateway binds
// one logical store per browser session; tests use it directly.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.Access
}

func (s *MemoryStore) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.Refresh
}

func (s *MemoryStore) SetTokens(pair TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair.Access != "" {
		s.pair.Access = pair.Access
	}
	if pair.Refresh != "" {
		s.pair.Refresh = pair.Refresh
	}
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
}

// Fixed on-disk keys, matching the durable storage keys of the web client.
type tokenFile struct {
	Access  string `json:"rm_access"`
	Refresh string `json:"rm_refresh"`
}

// FileStore persists tokens as a JSON file so that CLI invocations share one
// login. Writes are best effort: persistence failures degrade to an empty
// store on the next load rather than failing the calling operation.
type FileStore struct {
	mu   sync.Mutex
	path string
	pair TokenPair
}

// NewFileStore loads (or lazily creates) the token file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		// Corrupt token file: start over, the user just logs in again.
		return s, nil
	}
	s.pair = TokenPair{Access: tf.Access, Refresh: tf.Refresh}
	return s, nil
}

func (s *FileStore) Access() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair.Access
}

func (s *FileStore) Refresh() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair.Refresh
}

func (s *FileStore) SetTokens(pair TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair.Access != "" {
		s.pair.Access = pair.Access
	}
	if pair.Refresh != "" {
		s.pair.Refresh = pair.Refresh
	}
	s.persist()
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	_ = os.Remove(s.path)
}

// persist writes atomically via a temp file in the same directory.
func (s *FileStore) persist() {
	data, err := json.Marshal(tokenFile{Access: s.pair.Access, Refresh: s.pair.Refresh})
	if err != nil {
		return
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(name)
		return
	}
	_ = os.Chmod(name, 0o600)
	_ = os.Rename(name, s.path)
}
