package appointments

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlotLocker hands out exclusive reservation tokens per slot timestamp.
// TryLock never waits: a held slot fails with ErrSlotConflict.
type SlotLocker interface {
	TryLock(ctx context.Context, at time.Time) (release func(), err error)
}

// MemorySlotLocker keeps reservation tokens in a map keyed by timestamp.
// The mutex guards only the map, never a booking.
type MemorySlotLocker struct {
	mu     sync.Mutex
	tokens map[int64]string
}

func NewMemorySlotLocker() *MemorySlotLocker {
	return &MemorySlotLocker{tokens: make(map[int64]string)}
}

func (l *MemorySlotLocker) TryLock(ctx context.Context, at time.Time) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := at.Unix()
	token := uuid.NewString()

	l.mu.Lock()
	if _, held := l.tokens[key]; held {
		l.mu.Unlock()
		return nil, ErrSlotConflict
	}
	l.tokens[key] = token
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.tokens[key] == token {
				delete(l.tokens, key)
			}
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisSlotLocker shares reservation tokens across instances. The TTL bounds
// how long a crashed holder can keep a slot.
type RedisSlotLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *RedisSlotLocker {
	if client == nil {
		panic("appointments: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSlotLocker{client: client, prefix: "voiceagent:slot:", ttl: ttl}
}

func (l *RedisSlotLocker) key(at time.Time) string {
	return l.prefix + strconv.FormatInt(at.Unix(), 10)
}

func (l *RedisSlotLocker) TryLock(ctx context.Context, at time.Time) (func(), error) {
	key := l.key(at)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("appointments: reserve slot: %w", err)
	}
	if !ok {
		return nil, ErrSlotConflict
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must run even if the booking context was cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
