package session

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryStoreSize = 10000

type memoryRefresh struct {
	userID    string
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Sessions do not survive a restart and are
// not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	refresh *lru.LRU[string, memoryRefresh]
	revoked *lru.LRU[string, time.Time]
	states  *lru.LRU[string, struct{}]
	byUser  map[string]map[string]struct{}
}

// NewMemoryStore sizes the refresh and revocation caches by the token lifetimes.
func NewMemoryStore(refreshTTL, accessTTL time.Duration) *MemoryStore {
	s := &MemoryStore{byUser: make(map[string]map[string]struct{})}
	s.refresh = lru.NewLRU[string, memoryRefresh](memoryStoreSize, nil, refreshTTL)
	s.revoked = lru.NewLRU[string, time.Time](memoryStoreSize, nil, accessTTL)
	s.states = lru.NewLRU[string, struct{}](memoryStoreSize, nil, OAuthStateTTL)
	return s
}

func (s *MemoryStore) SaveRefresh(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh.Add(tokenHash, memoryRefresh{userID: userID, expiresAt: expiresAt})
	hashes := s.byUser[userID]
	if hashes == nil {
		hashes = make(map[string]struct{})
		s.byUser[userID] = hashes
	}
	// Drop hashes that expired or were consumed since the last save.
	for hash := range hashes {
		if !s.refresh.Contains(hash) {
			delete(hashes, hash)
		}
	}
	hashes[tokenHash] = struct{}{}
	return nil
}

func (s *MemoryStore) ConsumeRefresh(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.refresh.Peek(tokenHash)
	if !ok {
		return "", ErrNotFound
	}
	s.refresh.Remove(tokenHash)
	delete(s.byUser[data.userID], tokenHash)
	if !data.expiresAt.IsZero() && time.Now().After(data.expiresAt) {
		return "", ErrNotFound
	}
	return data.userID, nil
}

func (s *MemoryStore) RevokeRefresh(ctx context.Context, tokenHash string) error {
	_, err := s.ConsumeRefresh(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *MemoryStore) RevokeUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash := range s.byUser[userID] {
		s.refresh.Remove(hash)
	}
	delete(s.byUser, userID)
	return nil
}

func (s *MemoryStore) RevokeAccess(_ context.Context, jti string, expiresAt time.Time) error {
	if !time.Now().Before(expiresAt) {
		return nil
	}
	s.revoked.Add(jti, expiresAt)
	return nil
}

func (s *MemoryStore) IsAccessRevoked(_ context.Context, jti string) (bool, error) {
	expiresAt, ok := s.revoked.Get(jti)
	return ok && time.Now().Before(expiresAt), nil
}

func (s *MemoryStore) SaveOAuthState(_ context.Context, state string) error {
	s.states.Add(state, struct{}{})
	return nil
}

func (s *MemoryStore) ConsumeOAuthState(_ context.Context, state string) (bool, error) {
	return s.states.Remove(state), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.refresh.Purge()
	s.revoked.Purge()
	s.states.Purge()
	return nil
}
