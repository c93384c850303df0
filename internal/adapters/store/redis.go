package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// DefaultReferenceTTL is how long a stored reference stays in Redis.
const DefaultReferenceTTL = 30 * 24 * time.Hour

// redisClient is the subset of *redis.Client used by RedisReferenceStore.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisReferenceStore persists resolved reference builds as JSON in Redis.
type RedisReferenceStore struct {
	client redisClient
	ttl    time.Duration
}

var _ domain.ReferenceStore = (*RedisReferenceStore)(nil)

// NewRedisReferenceStore connects to the Redis server at redisURL.
func NewRedisReferenceStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisReferenceStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// test the connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisReferenceStore(client, ttl), nil
}

func newRedisReferenceStore(client redisClient, ttl time.Duration) *RedisReferenceStore {
	if ttl <= 0 {
		ttl = DefaultReferenceTTL
	}
	return &RedisReferenceStore{client: client, ttl: ttl}
}

func referenceKey(ownerBuildID string) string {
	return fmt.Sprintf("reference:%s", ownerBuildID)
}

// SaveReference stores the reference build unless one is already stored for
// the originating build.
func (r *RedisReferenceStore) SaveReference(ctx context.Context, ref domain.ReferenceBuild) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to marshal reference: %w", err)
	}

	if err := r.client.SetNX(ctx, referenceKey(ref.OwnerBuildID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reference of %s: %w", ref.OwnerBuildID, err)
	}
	return nil
}

// FindReference returns the stored reference of the originating build.
func (r *RedisReferenceStore) FindReference(ctx context.Context, ownerBuildID string) (*domain.ReferenceBuild, error) {
	data, err := r.client.Get(ctx, referenceKey(ownerBuildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrReferenceNotFound, ownerBuildID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference of %s: %w", ownerBuildID, err)
	}

	var ref domain.ReferenceBuild
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reference of %s: %w", ownerBuildID, err)
	}
	return &ref, nil
}

// Close closes the Redis client.
func (r *RedisReferenceStore) Close() error {
	return r.client.Close()
}
