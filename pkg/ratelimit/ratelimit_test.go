package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	l := PerSecond(5, 10)
	assert.Equal(t, time.Second, l.Period)
	assert.False(t, l.Unlimited())
	assert.True(t, Limit{}.Unlimited())
	assert.Equal(t, "5/1s (burst 10)", l.String())
}

func TestRedisRateLimiter_UnlimitedSkipsRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	res, err := NewRedisRateLimiter(rdb).Allow(context.Background(), "k", Limit{})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisRateLimiter_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisRateLimiter(rdb).Allow(context.Background(), "user:1", PerSecond(1, 1))
	assert.Error(t, err)
}
