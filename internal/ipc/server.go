package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"voiceguard/internal/logging"
)

// Handler processes one inbound application message. The ACK is sent only
// after the handler returns nil; an error drops the message unacknowledged
// and the sender observes the send as failed. There is no resend.
type Handler func(ctx context.Context, msg *Message) error

// Server accepts helper connections on a unix socket and dispatches inbound
// frames to registered handlers.
type Server struct {
	socketPath string
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[MessageType]Handler
	conns    map[net.Conn]*sync.Mutex
	lastSeen time.Time

	onConnect    func()
	onDisconnect func()

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server for the given socket path.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		logger:     logging.NewComponentLogger(logger, "ipc-server"),
		handlers:   make(map[MessageType]Handler),
		conns:      make(map[net.Conn]*sync.Mutex),
	}
}

// Handle registers the handler for msgType. Must be called before Serve.
func (s *Server) Handle(msgType MessageType, handler Handler) {
	s.mu.Lock()
	s.handlers[msgType] = handler
	s.mu.Unlock()
}

// SetConnectionHooks registers callbacks fired when a helper connects or
// drops. Either may be nil.
func (s *Server) SetConnectionHooks(onConnect, onDisconnect func()) {
	s.onConnect = onConnect
	s.onDisconnect = onDisconnect
}

// Serve listens on the socket and accepts connections until ctx is
// cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.logger.Info("listening", logging.String("socket", s.socketPath))

	go func() {
		<-s.ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", logging.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Close stops the listener and waits for connection goroutines.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return os.Remove(s.socketPath)
}

// ClientConnected reports whether at least one helper is attached.
func (s *Server) ClientConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns) > 0
}

// LastActivity returns the time of the most recent inbound frame.
func (s *Server) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.conns[conn] = writeMu
	s.lastSeen = time.Now()
	s.mu.Unlock()

	s.logger.Info("helper connected")
	if s.onConnect != nil {
		s.onConnect()
	}

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.logger.Info("helper disconnected")
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	}()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("inbound frame rejected", logging.Error(err))
			if errors.Is(err, ErrTruncatedFrame) || errors.Is(err, ErrFrameTooLarge) {
				// The stream is no longer frame-aligned; force a reconnect.
				return
			}
			continue
		}

		s.mu.Lock()
		s.lastSeen = time.Now()
		s.mu.Unlock()

		if msg.Type == TypeAck {
			continue
		}
		s.dispatch(conn, writeMu, msg)
	}
}

func (s *Server) dispatch(conn net.Conn, writeMu *sync.Mutex, msg *Message) {
	s.mu.RLock()
	handler := s.handlers[msg.Type]
	s.mu.RUnlock()

	if handler == nil {
		s.logger.Warn("no handler for message type",
			logging.String("type", string(msg.Type)),
			logging.String(logging.FieldMessageID, msg.MessageID))
		return
	}
	if err := handler(s.ctx, msg); err != nil {
		s.logger.Error("message handler failed",
			logging.String("type", string(msg.Type)),
			logging.String(logging.FieldMessageID, msg.MessageID),
			logging.Error(err))
		return
	}

	writeMu.Lock()
	err := WriteMessage(conn, newAck(msg))
	writeMu.Unlock()
	if err != nil {
		s.logger.Warn("ack write failed",
			logging.String(logging.FieldMessageID, msg.MessageID),
			logging.Error(err))
	}
}
