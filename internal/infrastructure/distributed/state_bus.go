package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rtsview/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultChannel   = "rtsview:states"
	DefaultStateTTL  = 5 * time.Minute
	streamViewersTTL = 10 * time.Minute
)

// StateEvent is one published viewer state.
type StateEvent struct {
	InstanceID string             `json:"instance_id"`
	StreamName string             `json:"stream_name"`
	Timestamp  time.Time          `json:"timestamp"`
	State      domain.StreamState `json:"state"`
}

// StateBus fans viewer states out over redis pub/sub and keeps the latest
// state of every instance under a key with a TTL, so a fleet of headless
// viewers can be observed from one place.
type StateBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	ttl        time.Duration
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewStateBus(client *redis.Client, instanceID, channel string, logger *zap.SugaredLogger) *StateBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &StateBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		ttl:        DefaultStateTTL,
		logger:     logger,
	}
}

// Publish stores the state as this instance's latest and broadcasts it.
func (b *StateBus) Publish(ctx context.Context, streamName string, state domain.StreamState) error {
	event := StateEvent{
		InstanceID: b.instanceID,
		StreamName: streamName,
		Timestamp:  time.Now(),
		State:      state,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.instanceKey(b.instanceID), data, b.ttl)
	if streamName != "" {
		pipe.SAdd(ctx, b.streamKey(streamName), b.instanceID)
		pipe.Expire(ctx, b.streamKey(streamName), streamViewersTTL)
	}
	pipe.Publish(ctx, b.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}

	b.logger.Debugw("published state",
		"stream_name", streamName,
		"state", state.Kind,
	)
	return nil
}

// Subscribe calls handler for every state published by other instances
// until ctx is done.
func (b *StateBus) Subscribe(ctx context.Context, handler func(StateEvent)) error {
	b.mu.Lock()
	if b.pubsub != nil {
		b.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	b.pubsub = pubsub
	b.mu.Unlock()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event StateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal state",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			if event.InstanceID == b.instanceID {
				continue
			}
			handler(event)
		}
	}
}

// Viewers returns the latest state of every live instance watching streamName.
// Expired instances are pruned from the stream set.
func (b *StateBus) Viewers(ctx context.Context, streamName string) ([]StateEvent, error) {
	ids, err := b.client.SMembers(ctx, b.streamKey(streamName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list viewers: %w", err)
	}

	viewers := make([]StateEvent, 0, len(ids))
	for _, id := range ids {
		data, err := b.client.Get(ctx, b.instanceKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			b.client.SRem(ctx, b.streamKey(streamName), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get viewer %s: %w", id, err)
		}

		var event StateEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			b.logger.Warnw("failed to unmarshal viewer state", "instance_id", id, "error", err)
			continue
		}
		viewers = append(viewers, event)
	}
	return viewers, nil
}

// Unregister removes this instance's state.
func (b *StateBus) Unregister(ctx context.Context, streamName string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.instanceKey(b.instanceID))
	if streamName != "" {
		pipe.SRem(ctx, b.streamKey(streamName), b.instanceID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister: %w", err)
	}
	return nil
}

func (b *StateBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

func (b *StateBus) instanceKey(instanceID string) string {
	return fmt.Sprintf("rtsview:viewer:%s", instanceID)
}

func (b *StateBus) streamKey(streamName string) string {
	return fmt.Sprintf("rtsview:stream:%s:viewers", streamName)
}
