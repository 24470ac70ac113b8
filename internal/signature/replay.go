package signature

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"quorum/pkg/platform/sentinel"
)

var replayCheckDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "quorum_replay_check_duration_ms",
	Help:    "Latency of proof replay checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// ReplayIndex records proof digests so a proof can never authorize two votes.
type ReplayIndex interface {
	// Register claims a digest atomically. Returns sentinel.ErrAlreadyUsed if
	// the digest was registered before.
	Register(ctx context.Context, digest string) error
}

// InMemoryReplayIndex is the single-process implementation.
type InMemoryReplayIndex struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInMemoryReplayIndex() *InMemoryReplayIndex {
	return &InMemoryReplayIndex{seen: make(map[string]struct{})}
}

func (i *InMemoryReplayIndex) Register(_ context.Context, digest string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[digest]; ok {
		return fmt.Errorf("proof digest: %w", sentinel.ErrAlreadyUsed)
	}
	i.seen[digest] = struct{}{}
	return nil
}

const replayKeyPrefix = "proof:digest:"

// RedisReplayIndex is the distributed implementation for deployments where
// multiple instances serve castVote concurrently. SETNX makes registration a
// single atomic compare-and-set.
type RedisReplayIndex struct {
	client *redis.Client
	// Retention only needs to outlive the longest meeting lifecycle.
	ttl time.Duration
}

func NewRedisReplayIndex(client *redis.Client, ttl time.Duration) *RedisReplayIndex {
	return &RedisReplayIndex{client: client, ttl: ttl}
}

func (i *RedisReplayIndex) Register(ctx context.Context, digest string) error {
	start := time.Now()
	defer func() {
		replayCheckDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ok, err := i.client.SetNX(ctx, replayKeyPrefix+digest, "1", i.ttl).Result()
	if err != nil {
		return fmt.Errorf("register digest: %w", err)
	}
	if !ok {
		return fmt.Errorf("proof digest: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}
