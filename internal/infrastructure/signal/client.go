package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rtsview/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrClientClosed = errors.New("signaling connection closed")

// CommandError is a command the server answered with an error message.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("signaling command %s failed: %s", e.Command, e.Message)
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	CommandTimeout time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		CommandTimeout: 10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

type EventHandler func(name string, data json.RawMessage)

type result struct {
	data json.RawMessage
	err  error
}

// Client is a viewer signaling connection. Commands are correlated with
// their responses by transaction id; events are delivered in order on the
// read goroutine.
type Client struct {
	conn    *websocket.Conn
	opts    Options
	logger  *zap.SugaredLogger
	onEvent EventHandler
	onClose func(err error)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan result
	closed  bool

	done chan struct{}
}

// Dial opens the signaling websocket. onClose is called once when the
// connection drops without Close being called.
func Dial(ctx context.Context, url string, opts Options, logger *zap.SugaredLogger, onEvent EventHandler, onClose func(error)) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: opts.CommandTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial signaling server (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}

	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  logger,
		onEvent: onEvent,
		onClose: onClose,
		pending: make(map[uint64]chan result),
		done:    make(chan struct{}),
	}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
			return nil
		})
	}

	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop()
	}
	return c, nil
}

// Call sends a command and decodes the response data into out, which may be nil.
func (c *Client) Call(ctx context.Context, name string, data, out any) error {
	ctx, span := tracing.TraceSignalingCommand(ctx, name)
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", name, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan result, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Message{Type: TypeCommand, Name: name, TransID: id, Data: payload}); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	timeout := c.opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().CommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			tracing.RecordError(ctx, res.err)
			return res.err
		}
		if out != nil && len(res.data) > 0 {
			if err := json.Unmarshal(res.data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", name, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("signaling command %s timed out after %s", name, timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Name, err)
	}
	return nil
}

func (c *Client) readLoop() {
	var readErr error
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			readErr = err
			break
		}
		if c.opts.PongTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		}
		c.dispatch(msg)
	}

	if c.shutdown() {
		if websocket.IsUnexpectedCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Warnw("signaling connection lost", "error", readErr)
		}
		if c.onClose != nil {
			c.onClose(readErr)
		}
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case TypeResponse, TypeError:
		c.mu.Lock()
		ch, ok := c.pending[msg.TransID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debugw("response for unknown transaction", "trans_id", msg.TransID)
			return
		}
		res := result{data: msg.Data}
		if msg.Type == TypeError {
			res = result{err: &CommandError{Command: msg.Name, Message: errorText(msg.Data)}}
		}
		ch <- res
	case TypeEvent:
		if c.onEvent != nil {
			c.onEvent(msg.Name, msg.Data)
		}
	default:
		c.logger.Debugw("unknown signaling message", "type", msg.Type)
	}
}

func errorText(data json.RawMessage) string {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(data)
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout()))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugw("error sending ping", "error", err)
				return
			}
		}
	}
}

func (c *Client) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return DefaultOptions().WriteTimeout
}

// shutdown marks the client closed and reports whether this call did it.
func (c *Client) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

// Close closes the connection without invoking the onClose callback.
func (c *Client) Close() error {
	if !c.shutdown() {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
