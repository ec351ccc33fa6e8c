package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimStore grants a single in-flight send per appointment.
type ClaimStore interface {
	// Claim returns a token and true only to the first caller until that
	// token is released.
	Claim(ctx context.Context, appointmentID string) (token string, ok bool, err error)
	// Release frees the claim only while token still owns it.
	Release(ctx context.Context, appointmentID, token string) error
}

// MemoryClaimStore holds claims in process memory.
type MemoryClaimStore struct {
	mu     sync.Mutex
	claims map[string]string
}

func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{claims: make(map[string]string)}
}

func (s *MemoryClaimStore) Claim(ctx context.Context, appointmentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.claims[appointmentID]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	s.claims[appointmentID] = token
	return token, true, nil
}

func (s *MemoryClaimStore) Release(ctx context.Context, appointmentID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[appointmentID] == token {
		delete(s.claims, appointmentID)
	}
	return nil
}

// releaseClaimScript deletes the claim only if it still holds our token, so
// a sender whose claim expired cannot free a newer sender's claim.
var releaseClaimScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisClaimStore shares claims across instances. The TTL frees a claim left
// behind by a crashed sender.
type RedisClaimStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisClaimStore(client *redis.Client, ttl time.Duration) *RedisClaimStore {
	if client == nil {
		panic("notify: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisClaimStore{client: client, prefix: "voiceagent:confirmation:", ttl: ttl}
}

func (s *RedisClaimStore) Claim(ctx context.Context, appointmentID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.prefix+appointmentID, token, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("notify: claim %s: %w", appointmentID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *RedisClaimStore) Release(ctx context.Context, appointmentID, token string) error {
	if err := releaseClaimScript.Run(ctx, s.client, []string{s.prefix + appointmentID}, token).Err(); err != nil {
		return fmt.Errorf("notify: release %s: %w", appointmentID, err)
	}
	return nil
}
