package distributed

import (
	"context"
	"testing"
	"time"

	"rtsview/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestBus(t *testing.T, instanceID string) (*StateBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStateBus(client, instanceID, "", zap.NewNop().Sugar()), mr
}

func TestStateBusPublishAndViewers(t *testing.T) {
	bus, mr := setupTestBus(t, "viewer-a")
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "live", domain.SubscribedStreamState(nil, 7)))

	viewers, err := bus.Viewers(ctx, "live")
	require.NoError(t, err)
	require.Len(t, viewers, 1)
	assert.Equal(t, "viewer-a", viewers[0].InstanceID)
	assert.Equal(t, domain.StreamSubscribed, viewers[0].State.Kind)
	assert.Equal(t, 7, viewers[0].State.ViewerCount)

	mr.FastForward(DefaultStateTTL + time.Second)

	viewers, err = bus.Viewers(ctx, "live")
	require.NoError(t, err)
	assert.Empty(t, viewers)
}

func TestStateBusUnregister(t *testing.T) {
	bus, _ := setupTestBus(t, "viewer-a")
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "live", domain.LoadingState()))
	require.NoError(t, bus.Unregister(ctx, "live"))

	viewers, err := bus.Viewers(ctx, "live")
	require.NoError(t, err)
	assert.Empty(t, viewers)
}

func TestStateBusSubscribeSkipsOwnStates(t *testing.T) {
	mr := miniredis.RunT(t)
	newBus := func(id string) *StateBus {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewStateBus(client, id, "", zap.NewNop().Sugar())
	}
	a, b := newBus("viewer-a"), newBus("viewer-b")
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan StateEvent, 4)
	go func() { _ = a.Subscribe(ctx, func(e StateEvent) { received <- e }) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Publish(ctx, "live", domain.LoadingState()))
	require.NoError(t, b.Publish(ctx, "live", domain.StoppedState()))

	select {
	case e := <-received:
		assert.Equal(t, "viewer-b", e.InstanceID)
		assert.Equal(t, domain.StreamStopped, e.State.Kind)
	case <-time.After(time.Second):
		t.Fatal("no state received")
	}

	select {
	case e := <-received:
		t.Fatalf("unexpected state from %s", e.InstanceID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), RedisOptions{Address: addr, PoolSize: 2}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisOptions{Address: addr}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
