package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSignalServer answers commands through respond and can push events.
type fakeSignalServer struct {
	*httptest.Server

	respond func(msg Message) Message

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeSignalServer(t *testing.T, respond func(msg Message) Message) *fakeSignalServer {
	t.Helper()
	s := &fakeSignalServer{respond: respond}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if s.respond == nil {
				continue
			}
			s.mu.Lock()
			err := conn.WriteJSON(s.respond(msg))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeSignalServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *fakeSignalServer) push(t *testing.T, msg Message) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.conn.WriteJSON(msg))
}

func (s *fakeSignalServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.CommandTimeout = time.Second
	return opts
}

func TestClientCall(t *testing.T) {
	server := newFakeSignalServer(t, func(msg Message) Message {
		if msg.Name == CmdUnproject {
			return Message{Type: TypeError, TransID: msg.TransID, Data: json.RawMessage(`"unknown mid"`)}
		}
		var req ViewRequest
		_ = json.Unmarshal(msg.Data, &req)
		data, _ := json.Marshal(SDPResponse{SDP: "answer-for-" + req.StreamID})
		return Message{Type: TypeResponse, TransID: msg.TransID, Data: data}
	})

	client, err := Dial(context.Background(), server.wsURL(), testOptions(), zap.NewNop().Sugar(), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	var resp SDPResponse
	require.NoError(t, client.Call(context.Background(), CmdView, ViewRequest{StreamID: "live"}, &resp))
	assert.Equal(t, "answer-for-live", resp.SDP)

	err = client.Call(context.Background(), CmdUnproject, UnprojectRequest{MediaIDs: []string{"7"}}, nil)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "unknown mid", cmdErr.Message)
}

func TestClientCallTimeout(t *testing.T) {
	server := newFakeSignalServer(t, nil)

	opts := testOptions()
	opts.CommandTimeout = 50 * time.Millisecond
	client, err := Dial(context.Background(), server.wsURL(), opts, zap.NewNop().Sugar(), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(context.Background(), CmdView, ViewRequest{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClientEvents(t *testing.T) {
	server := newFakeSignalServer(t, nil)

	events := make(chan string, 4)
	client, err := Dial(context.Background(), server.wsURL(), testOptions(), zap.NewNop().Sugar(),
		func(name string, data json.RawMessage) { events <- name }, nil)
	require.NoError(t, err)
	defer client.Close()

	server.push(t, Message{Type: TypeEvent, Name: EventActive, Data: json.RawMessage(`{"streamId":"live"}`)})
	server.push(t, Message{Type: TypeEvent, Name: EventViewerCount, Data: json.RawMessage(`{"viewercount":3}`)})

	assert.Equal(t, EventActive, <-events)
	assert.Equal(t, EventViewerCount, <-events)
}

func TestClientOnClose(t *testing.T) {
	server := newFakeSignalServer(t, nil)

	closed := make(chan error, 1)
	client, err := Dial(context.Background(), server.wsURL(), testOptions(), zap.NewNop().Sugar(), nil,
		func(err error) { closed <- err })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return server.conn != nil
	}, time.Second, 5*time.Millisecond)
	server.drop()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("onClose was not called")
	}
	<-client.Done()
	assert.ErrorIs(t, client.Call(context.Background(), CmdView, ViewRequest{}, nil), ErrClientClosed)
}

func TestClientCloseDoesNotNotify(t *testing.T) {
	server := newFakeSignalServer(t, nil)

	closed := make(chan error, 1)
	client, err := Dial(context.Background(), server.wsURL(), testOptions(), zap.NewNop().Sugar(), nil,
		func(err error) { closed <- err })
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	select {
	case <-closed:
		t.Fatal("onClose called after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
