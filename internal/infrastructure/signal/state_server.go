package signal

import (
	"net/http"
	"sync"
	"time"

	"rtsview/internal/core/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StateMessage is what dashboard clients receive for every published state.
type StateMessage struct {
	Type  string             `json:"type"`
	State domain.StreamState `json:"state"`
}

type stateClient struct {
	conn *websocket.Conn
	send chan StateMessage
}

// StateStreamServer pushes viewer state to websocket clients.
type StateStreamServer struct {
	current func() domain.StreamState

	connections map[uuid.UUID]*stateClient
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewStateStreamServer(current func() domain.StreamState, logger *zap.SugaredLogger) *StateStreamServer {
	return &StateStreamServer{
		current:      current,
		connections:  make(map[uuid.UUID]*stateClient),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *StateStreamServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *StateStreamServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

func (s *StateStreamServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.New()
	client := &stateClient{conn: conn, send: make(chan StateMessage, 16)}
	client.send <- StateMessage{Type: "state", State: s.current()}

	s.mu.Lock()
	s.connections[id] = client
	s.mu.Unlock()
	s.logger.Infow("state client connected", "client_id", id)

	defer func() {
		s.mu.Lock()
		delete(s.connections, id)
		s.mu.Unlock()
		s.logger.Infow("state client disconnected", "client_id", id)
	}()

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	// Clients only read; the reader exists to process pongs and close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Infow("error reading from state client", "client_id", id, "error", err)
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Infow("error sending state", "client_id", id, "error", err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "client_id", id, "error", err)
				return
			}
		case <-closed:
			return
		}
	}
}

// Broadcast queues state for every client. Slow clients lose their oldest
// queued state.
func (s *StateStreamServer) Broadcast(state domain.StreamState) {
	msg := StateMessage{Type: "state", State: state}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		for {
			select {
			case c.send <- msg:
			default:
				select {
				case <-c.send:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *StateStreamServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
