//go:build integration

package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fxsettle/internal/payment/guard"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestSecondInstanceWaitsThenAcquires() {
	ctx := context.Background()
	first := guard.New("submit", guard.NewRedisLocker(s.redis.Client.Client, "submit"))
	second := guard.New("submit", guard.NewRedisLocker(s.redis.Client.Client, "submit"))

	_, release, err := first.Enter(ctx)
	s.Require().NoError(err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, _, err = second.Enter(short)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	release()

	_, release2, err := second.Enter(ctx)
	s.Require().NoError(err)
	release2()
}

func (s *RedisLockerSuite) TestExpiredHolderCannotReleaseNewOwner() {
	ctx := context.Background()
	locker := guard.NewRedisLocker(s.redis.Client.Client, "ttl", guard.WithLockTTL(50*time.Millisecond))

	unlockStale, err := locker.Lock(ctx)
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	unlockFresh, err := locker.Lock(ctx)
	s.Require().NoError(err)

	unlockStale()
	exists, err := s.redis.Client.Exists(ctx, "fxsettle:lock:ttl").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists, "stale release must not delete the new owner's key")

	unlockFresh()
}
