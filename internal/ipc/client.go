package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"voiceguard/internal/logging"
)

// Client errors.
var (
	ErrNotConnected = errors.New("not connected")
	ErrAckTimeout   = errors.New("ack timeout")
)

// ConnState is the client's connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ClientConfig tunes connection and acknowledgement behavior.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	AckTimeout     time.Duration
}

// Client connects the helper to the service socket. Send blocks until the
// frame is acknowledged; a lost connection is re-established in the
// background.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	state   ConnState
	pending map[string]chan struct{}

	handlers map[MessageType]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a client. Call Connect before Send.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Client{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "ipc-client"),
		pending:  make(map[string]chan struct{}),
		handlers: make(map[MessageType]Handler),
	}
}

// Handle registers a handler for service-initiated frames. Must be called
// before Connect.
func (c *Client) Handle(msgType MessageType, handler Handler) {
	c.handlers[msgType] = handler
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the service socket, retrying at a fixed interval until the
// connect timeout elapses. On success a background reader owns the
// connection and re-dials after any loss.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.setState(StateConnecting)
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	for {
		conn, err := net.Dial("unix", c.cfg.SocketPath)
		if err == nil {
			c.adopt(conn)
			return nil
		}
		if time.Now().After(deadline) {
			c.setState(StateDisconnected)
			return fmt.Errorf("connect to %s: %w", c.cfg.SocketPath, err)
		}
		c.logger.Debug("service socket not ready, retrying", logging.Error(err))
		select {
		case <-c.ctx.Done():
			c.setState(StateDisconnected)
			return c.ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	return nil
}

// Send writes msg and blocks until its ACK arrives or the ack window
// elapses.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	acked := make(chan struct{})
	c.pending[msg.MessageID] = acked
	err := WriteMessage(conn, msg)
	c.mu.Unlock()

	if err != nil {
		c.forget(msg.MessageID)
		return err
	}

	select {
	case <-acked:
		return nil
	case <-time.After(c.cfg.AckTimeout):
		c.forget(msg.MessageID)
		return ErrAckTimeout
	case <-ctx.Done():
		c.forget(msg.MessageID)
		return ctx.Err()
	}
}

func (c *Client) forget(messageID string) {
	c.mu.Lock()
	delete(c.pending, messageID)
	c.mu.Unlock()
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// adopt installs conn and starts its read loop.
func (c *Client) adopt(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	c.logger.Info("connected", logging.String("socket", c.cfg.SocketPath))

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("read failed", logging.Error(err))
			}
			c.reconnect(conn)
			return
		}

		if msg.Type == TypeAck {
			c.mu.Lock()
			if acked, ok := c.pending[msg.CorrelationID]; ok {
				delete(c.pending, msg.CorrelationID)
				close(acked)
			}
			c.mu.Unlock()
			continue
		}

		if handler, ok := c.handlers[msg.Type]; ok {
			if err := handler(c.ctx, msg); err != nil {
				c.logger.Error("message handler failed",
					logging.String("type", string(msg.Type)),
					logging.Error(err))
				continue
			}
			c.mu.Lock()
			writeErr := WriteMessage(conn, newAck(msg))
			c.mu.Unlock()
			if writeErr != nil {
				c.logger.Warn("ack write failed", logging.Error(writeErr))
			}
		}
	}
}

// reconnect re-dials with a capped exponential backoff until the context is
// cancelled.
func (c *Client) reconnect(old net.Conn) {
	_ = old.Close()
	c.setState(StateConnecting)
	c.logger.Warn("connection lost, reconnecting")

	backoff := c.cfg.RetryInterval
	for {
		select {
		case <-c.ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(backoff):
		}
		conn, err := net.Dial("unix", c.cfg.SocketPath)
		if err == nil {
			c.adopt(conn)
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
