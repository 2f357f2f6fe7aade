package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rtsview/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateStreamServer(t *testing.T) {
	s := NewStateStreamServer(domain.LoadingState, zap.NewNop().Sugar())
	server := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg StateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.StreamLoading, msg.State.Kind)

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Broadcast(domain.SubscribedStreamState(nil, 12))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.StreamSubscribed, msg.State.Kind)
	assert.Equal(t, 12, msg.State.ViewerCount)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
