package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedRedis answers EVALSHA with canned replies.
type scriptedRedis struct {
	replies []any
	err     error
	keys    []string
}

func (s *scriptedRedis) reply(ctx context.Context, keys []string) *redis.Cmd {
	s.keys = append(s.keys, keys...)
	cmd := redis.NewCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	cmd.SetVal(s.replies[0])
	s.replies = s.replies[1:]
	return cmd
}

func (s *scriptedRedis) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.reply(ctx, keys)
}

func (s *scriptedRedis) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.reply(ctx, keys)
}

func (s *scriptedRedis) EvalRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.reply(ctx, keys)
}

func (s *scriptedRedis) EvalShaRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.reply(ctx, keys)
}

func (s *scriptedRedis) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceCmd(ctx)
}

func (s *scriptedRedis) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func TestTokenBucketAllow(t *testing.T) {
	client := &scriptedRedis{replies: []any{
		[]interface{}{int64(1), "4.5", int64(1000)},
		[]interface{}{int64(0), "0.5", int64(1000)},
	}}
	bucket := NewTokenBucket(client)

	res, err := bucket.Allow(context.Background(), "ap:writes:org:1", 2, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Zero(t, res.RetryAfter)

	res, err = bucket.Allow(context.Background(), "ap:writes:org:1", 2, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	bucket := NewTokenBucket(&scriptedRedis{})

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	var nilBucket *TokenBucket
	_, err = nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWriteLimiterKeysByOrg(t *testing.T) {
	client := &scriptedRedis{replies: []any{[]interface{}{int64(1), "0", int64(1)}}}
	limiter := New(NewTokenBucket(client), 1, 1, zap.NewNop())

	allowed, _ := limiter.AllowOrg(context.Background(), " 42 ")
	assert.True(t, allowed)
	assert.Equal(t, []string{"ap:writes:org:42"}, client.keys)
}

func TestWriteLimiterFailsOpen(t *testing.T) {
	limiter := New(NewTokenBucket(&scriptedRedis{err: errors.New("connection refused")}), 1, 1, zap.NewNop())

	allowed, retry := limiter.AllowOrg(context.Background(), "1")
	assert.True(t, allowed)
	assert.Zero(t, retry)

	var disabled *WriteLimiter
	allowed, _ = disabled.AllowOrg(context.Background(), "1")
	assert.True(t, allowed)
}
