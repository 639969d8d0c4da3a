package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

type refreshData struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps sessions under the refresh:, user_refresh:, revoked: and
// oauth_state: key prefixes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection within 5s.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the connection so the view cache can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func refreshKey(tokenHash string) string { return "refresh:" + tokenHash }
func userKey(userID string) string       { return "user_refresh:" + userID }
func revokedKey(jti string) string       { return "revoked:" + jti }
func stateKey(state string) string       { return "oauth_state:" + state }

func (s *RedisStore) SaveRefresh(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	payload, err := json.Marshal(refreshData{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal refresh data: %w", err)
	}
	ttl := ttlUntil(expiresAt, defaultRefreshTTL)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshKey(tokenHash), payload, ttl)
	pipe.SAdd(ctx, userKey(userID), tokenHash)
	pipe.Expire(ctx, userKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeRefresh(ctx context.Context, tokenHash string) (string, error) {
	raw, err := s.client.GetDel(ctx, refreshKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}

	var data refreshData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("unmarshal refresh data: %w", err)
	}
	if err := s.client.SRem(ctx, userKey(data.UserID), tokenHash).Err(); err != nil {
		return "", fmt.Errorf("untrack refresh token: %w", err)
	}
	return data.UserID, nil
}

func (s *RedisStore) RevokeRefresh(ctx context.Context, tokenHash string) error {
	_, err := s.ConsumeRefresh(ctx, tokenHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeUser(ctx context.Context, userID string) error {
	hashes, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user refresh tokens: %w", err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, refreshKey(hash))
	}
	keys = append(keys, userKey(userID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SaveOAuthState(ctx context.Context, state string) error {
	if err := s.client.Set(ctx, stateKey(state), "1", OAuthStateTTL).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStore) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, stateKey(state)).Result()
	if err != nil {
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
