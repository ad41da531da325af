package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Registry is the global presence map: user id -> id of the socket that registered last.
// Remove only succeeds for the socket that currently owns the entry, so a stale socket closing
// does not knock a newer one offline.
type Registry interface {
	Set(ctx context.Context, userID, connID string) error
	Remove(ctx context.Context, userID, connID string) (bool, error)
	Online(ctx context.Context) ([]string, error)
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	users map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{users: make(map[string]string)}
}

func (r *MemoryRegistry) Set(_ context.Context, userID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = connID
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, userID, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[userID] != connID {
		return false, nil
	}
	delete(r.users, userID)
	return true, nil
}

func (r *MemoryRegistry) Online(_ context.Context) ([]string, error) {
	r.mu.RLock()
	online := make([]string, 0, len(r.users))
	for userID := range r.users {
		online = append(online, userID)
	}
	r.mu.RUnlock()
	sort.Strings(online)
	return online, nil
}

const (
	presenceUsersKey = "chat:presence:users"
	presenceUserKey  = "chat:presence:user:"

	// PresenceTTL bounds how long a user stays online after its broker instance stops refreshing.
	PresenceTTL = 90 * time.Second
)

var refreshIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var removeIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// Refresher is implemented by registries whose entries expire unless renewed.
type Refresher interface {
	Refresh(ctx context.Context, userID, connID string) error
}

// RedisRegistry shares presence between broker instances. Each user has its own key holding the
// owning connection id with a TTL; the hub renews it while the socket lives, so users of a crashed
// instance drop out after PresenceTTL.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: PresenceTTL}
}

func (r *RedisRegistry) userKey(userID string) string {
	return presenceUserKey + userID
}

func (r *RedisRegistry) Set(ctx context.Context, userID, connID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.userKey(userID), connID, r.ttl)
		pipe.SAdd(ctx, presenceUsersKey, userID)
		return nil
	})
	return err
}

func (r *RedisRegistry) Refresh(ctx context.Context, userID, connID string) error {
	return refreshIfOwner.Run(ctx, r.client, []string{r.userKey(userID)}, connID, r.ttl.Milliseconds()).Err()
}

func (r *RedisRegistry) Remove(ctx context.Context, userID, connID string) (bool, error) {
	n, err := removeIfOwner.Run(ctx, r.client, []string{r.userKey(userID), presenceUsersKey}, connID, userID).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Online lists users whose key is still alive and prunes expired ones from the index set.
func (r *RedisRegistry) Online(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, presenceUsersKey).Result()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(users))
	for i, userID := range users {
		keys[i] = r.userKey(userID)
	}
	owners, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	online := make([]string, 0, len(users))
	var expired []interface{}
	for i, owner := range owners {
		if owner == nil {
			expired = append(expired, users[i])
			continue
		}
		online = append(online, users[i])
	}
	if len(expired) > 0 {
		if err := r.client.SRem(ctx, presenceUsersKey, expired...).Err(); err != nil {
			return nil, err
		}
	}
	sort.Strings(online)
	return online, nil
}

var (
	_ Registry  = (*MemoryRegistry)(nil)
	_ Registry  = (*RedisRegistry)(nil)
	_ Refresher = (*RedisRegistry)(nil)
)
