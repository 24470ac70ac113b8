//go:build integration

package signature_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"quorum/internal/signature"
	"quorum/pkg/platform/sentinel"
	"quorum/pkg/testutil/containers"
)

type RedisReplaySuite struct {
	suite.Suite
	redis *containers.RedisContainer
	index *signature.RedisReplayIndex
}

func TestRedisReplaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisReplaySuite))
}

func (s *RedisReplaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.index = signature.NewRedisReplayIndex(s.redis.Client, time.Hour)
}

func (s *RedisReplaySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisReplaySuite) TestRegisterOnce() {
	ctx := context.Background()
	digest := "digest-" + uuid.NewString()

	s.Require().NoError(s.index.Register(ctx, digest))

	err := s.index.Register(ctx, digest)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	s.NoError(s.index.Register(ctx, "digest-"+uuid.NewString()))
}

// TestConcurrentRegister verifies SETNX behaves as a compare-and-set across
// concurrent registrations of the same digest.
func (s *RedisReplaySuite) TestConcurrentRegister() {
	ctx := context.Background()
	digest := "digest-" + uuid.NewString()
	const goroutines = 20

	var wg sync.WaitGroup
	var claimedCount, usedCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.index.Register(ctx, digest)
			switch {
			case err == nil:
				claimedCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				usedCount.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), claimedCount.Load())
	s.Equal(int32(goroutines-1), usedCount.Load())
}
