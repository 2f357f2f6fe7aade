package testutil

import (
	"context"
	"sync"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
)

// Projection is one recorded Project call.
type Projection struct {
	SourceID domain.SourceID
	Data     []domain.ProjectionData
}

// FakeTransport records every call and lets tests drive the listener.
// Errors set on the exported fields are returned by the matching call.
type FakeTransport struct {
	mu sync.Mutex

	ConnectErr     error
	SubscribeErr   error
	UnsubscribeErr error
	DisconnectErr  error
	ProjectErr     error

	// AutoConnect fires OnConnected from Connect; AutoSubscribe fires
	// OnSubscribed from Subscribe.
	AutoConnect   bool
	AutoSubscribe bool

	// ProjectGate, when set, holds every Project call until it is closed.
	ProjectGate chan struct{}

	listener     ports.TransportListener
	calls        []string
	creds        domain.Credentials
	connected    bool
	subscribed   bool
	statsEnabled bool
	remoteTracks []domain.MediaType
	projections  []Projection
	unprojected  [][]string
}

var _ ports.Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{AutoConnect: true, AutoSubscribe: true}
}

func (f *FakeTransport) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeTransport) SetListener(listener ports.TransportListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = listener
}

// Listener returns the listener the core registered.
func (f *FakeTransport) Listener() ports.TransportListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

func (f *FakeTransport) Connect(ctx context.Context, creds domain.Credentials, cfg domain.SubscriptionConfig) error {
	f.mu.Lock()
	f.record("connect")
	f.creds = creds
	if f.ConnectErr != nil {
		err := f.ConnectErr
		f.mu.Unlock()
		return err
	}
	f.connected = true
	auto, l := f.AutoConnect, f.listener
	f.mu.Unlock()

	if auto && l != nil {
		l.OnConnected()
	}
	return nil
}

func (f *FakeTransport) Subscribe(ctx context.Context) error {
	f.mu.Lock()
	f.record("subscribe")
	if f.SubscribeErr != nil {
		err := f.SubscribeErr
		f.mu.Unlock()
		return err
	}
	f.subscribed = true
	auto, l := f.AutoSubscribe, f.listener
	f.mu.Unlock()

	if auto && l != nil {
		l.OnSubscribed()
	}
	return nil
}

func (f *FakeTransport) Unsubscribe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unsubscribe")
	f.subscribed = false
	return f.UnsubscribeErr
}

func (f *FakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	f.connected = false
	return f.DisconnectErr
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) IsSubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

func (f *FakeTransport) EnableStats(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsEnabled = enabled
}

func (f *FakeTransport) AddRemoteTrack(ctx context.Context, media domain.MediaType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("add_remote_track")
	f.remoteTracks = append(f.remoteTracks, media)
	return nil
}

func (f *FakeTransport) Project(ctx context.Context, sourceID domain.SourceID, data []domain.ProjectionData) error {
	f.mu.Lock()
	f.record("project")
	gate := f.ProjectGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.projections = append(f.projections, Projection{SourceID: sourceID, Data: append([]domain.ProjectionData(nil), data...)})
	return f.ProjectErr
}

func (f *FakeTransport) Unproject(ctx context.Context, mids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unproject")
	f.unprojected = append(f.unprojected, append([]string(nil), mids...))
	return nil
}

// Calls returns the recorded call names in order.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeTransport) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *FakeTransport) Credentials() domain.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds
}

func (f *FakeTransport) StatsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsEnabled
}

func (f *FakeTransport) RemoteTracks() []domain.MediaType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MediaType(nil), f.remoteTracks...)
}

func (f *FakeTransport) Projections() []Projection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Projection(nil), f.projections...)
}

func (f *FakeTransport) Unprojected() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.unprojected...)
}

// Factory returns a TransportFactory that hands out transports in order and
// repeats the last one once exhausted.
func Factory(transports ...*FakeTransport) (ports.TransportFactory, func() int) {
	var (
		mu      sync.Mutex
		created int
	)
	factory := func() ports.Transport {
		mu.Lock()
		defer mu.Unlock()
		t := transports[len(transports)-1]
		if created < len(transports) {
			t = transports[created]
		}
		created++
		return t
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return created
	}
	return factory, count
}
