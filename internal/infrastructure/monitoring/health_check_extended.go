package monitoring

import (
	"context"
	"fmt"
	"time"

	"rtsview/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddViewerCheck reports the viewer unhealthy while its stream is in error.
func (h *HealthChecker) AddViewerCheck(state func() domain.StreamState) {
	h.AddCheck("viewer", func(ctx context.Context) (bool, error) {
		s := state()
		if s.Kind == domain.StreamErrored && s.Err != nil {
			return false, fmt.Errorf("stream error: %s", s.Err.Error())
		}
		return true, nil
	}, 0)
}
