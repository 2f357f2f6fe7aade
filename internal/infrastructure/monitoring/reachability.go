package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 3 * time.Second

// ReachabilityMonitor probes a URL periodically and reports changes in
// network reachability.
type ReachabilityMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	reachable *bool
}

func NewReachabilityMonitor(url string, interval time.Duration, logger *zap.SugaredLogger) *ReachabilityMonitor {
	return &ReachabilityMonitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: defaultProbeTimeout},
		logger:   logger,
	}
}

// Start probes immediately and then on every interval. onChange is called
// with the first result and whenever reachability flips.
func (m *ReachabilityMonitor) Start(ctx context.Context, onChange func(reachable bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, onChange, m.done)
}

func (m *ReachabilityMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *ReachabilityMonitor) run(ctx context.Context, onChange func(bool), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.observe(onChange, m.probe(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *ReachabilityMonitor) observe(onChange func(bool), reachable bool) {
	m.mu.Lock()
	changed := m.reachable == nil || *m.reachable != reachable
	m.reachable = &reachable
	m.mu.Unlock()

	if changed {
		m.logger.Infow("network reachability changed", "reachable", reachable, "url", m.url)
		onChange(reachable)
	}
}

func (m *ReachabilityMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debugw("reachability probe failed", "url", m.url, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
