package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeCall struct {
	op   string
	key  string
	args []any
}

// recordingPipe captures the commands queued inside a transaction.
type recordingPipe struct {
	redis.Pipeliner
	calls []pipeCall
}

func (p *recordingPipe) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		p.calls = append(p.calls, pipeCall{op: "del", key: k})
	}
	return redis.NewIntCmd(ctx)
}

func (p *recordingPipe) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	p.calls = append(p.calls, pipeCall{op: "sadd", key: key, args: members})
	return redis.NewIntCmd(ctx)
}

func (p *recordingPipe) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	p.calls = append(p.calls, pipeCall{op: "expire", key: key, args: []any{ttl}})
	return redis.NewBoolCmd(ctx)
}

// fakeRedis serves SMEMBERS from a map and records transactions.
type fakeRedis struct {
	redis.Cmdable
	sets    map[string][]string
	err     error
	pipe    *recordingPipe
	txCount int
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.sets[key], f.err)
}

func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	f.txCount++
	if f.err != nil {
		return nil, f.err
	}
	f.pipe = &recordingPipe{}
	return nil, fn(f.pipe)
}

func TestRedisTriggeredSetKey(t *testing.T) {
	assert.Equal(t, "triggered:alert-3", NewRedisTriggeredSet(&fakeRedis{}, "", 0).key("alert-3"))
	assert.Equal(t, "hw:triggered:alert-3", NewRedisTriggeredSet(&fakeRedis{}, "hw", 0).key("alert-3"))
}

func TestRedisTriggeredSetMembers(t *testing.T) {
	client := &fakeRedis{sets: map[string][]string{"hw:triggered:alert-1": {"BTCUSDT", "ETHUSDT"}}}
	set := NewRedisTriggeredSet(client, "hw", 0)

	members, err := set.Members(context.Background(), "alert-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"BTCUSDT": {}, "ETHUSDT": {}}, members)

	empty, err := set.Members(context.Background(), "alert-2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	client.err = errors.New("connection refused")
	_, err = set.Members(context.Background(), "alert-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis smembers")
}

func TestRedisTriggeredSetReplace(t *testing.T) {
	client := &fakeRedis{}
	set := NewRedisTriggeredSet(client, "hw", time.Hour)

	require.NoError(t, set.Replace(context.Background(), "alert-1", []string{"BTCUSDT", "ETHUSDT"}))
	assert.Equal(t, []pipeCall{
		{op: "del", key: "hw:triggered:alert-1"},
		{op: "sadd", key: "hw:triggered:alert-1", args: []any{"BTCUSDT", "ETHUSDT"}},
		{op: "expire", key: "hw:triggered:alert-1", args: []any{time.Hour}},
	}, client.pipe.calls)
}

func TestRedisTriggeredSetReplaceEmptyOnlyClears(t *testing.T) {
	client := &fakeRedis{}
	set := NewRedisTriggeredSet(client, "", time.Hour)

	require.NoError(t, set.Replace(context.Background(), "alert-1", nil))
	assert.Equal(t, []pipeCall{{op: "del", key: "triggered:alert-1"}}, client.pipe.calls)
}

func TestRedisTriggeredSetReplaceWithoutTTL(t *testing.T) {
	client := &fakeRedis{}
	set := NewRedisTriggeredSet(client, "", 0)

	require.NoError(t, set.Replace(context.Background(), "alert-1", []string{"BTCUSDT"}))
	require.Len(t, client.pipe.calls, 2)
	assert.Equal(t, "sadd", client.pipe.calls[1].op)
}

func TestRedisTriggeredSetReplaceError(t *testing.T) {
	client := &fakeRedis{err: errors.New("EXECABORT")}
	set := NewRedisTriggeredSet(client, "", 0)

	err := set.Replace(context.Background(), "alert-1", []string{"BTCUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis replace triggered set")
	assert.Equal(t, 1, client.txCount)
}
