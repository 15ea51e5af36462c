package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voiceguard/internal/logging"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	server := NewServer(socketPath, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = server.Close()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		probe := NewClient(ClientConfig{
			SocketPath:     socketPath,
			ConnectTimeout: 100 * time.Millisecond,
			RetryInterval:  20 * time.Millisecond,
		}, logging.NewNop())
		if err := probe.Connect(context.Background()); err == nil {
			_ = probe.Close()
			return server, socketPath
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
	return nil, ""
}

func newTestClient(t *testing.T, socketPath string) *Client {
	t.Helper()
	client := NewClient(ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RetryInterval:  50 * time.Millisecond,
		AckTimeout:     2 * time.Second,
	}, logging.NewNop())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSendReceivesAck(t *testing.T) {
	server, socketPath := startTestServer(t)

	var mu sync.Mutex
	var received []string
	server.Handle(TypeCommandDetected, func(_ context.Context, msg *Message) error {
		var payload CommandDetectedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		received = append(received, payload.Command)
		mu.Unlock()
		return nil
	})

	client := newTestClient(t, socketPath)

	msg, err := NewMessage(TypeCommandDetected, CommandDetectedPayload{Command: "kill switch"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "kill switch" {
		t.Fatalf("handler saw %v", received)
	}
}

func TestSendTimesOutWithoutAck(t *testing.T) {
	server, socketPath := startTestServer(t)

	// A handler error means no ACK is written.
	server.Handle(TypeStatusUpdate, func(context.Context, *Message) error {
		return errors.New("refused")
	})

	client := NewClient(ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RetryInterval:  50 * time.Millisecond,
		AckTimeout:     200 * time.Millisecond,
	}, logging.NewNop())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	msg, err := NewMessage(TypeStatusUpdate, StatusUpdatePayload{Component: "helper"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := client.Send(context.Background(), msg); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("err = %v, want ErrAckTimeout", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	client := NewClient(ClientConfig{SocketPath: "/nonexistent.sock"}, logging.NewNop())
	msg, err := NewMessage(TypeCancelShutdown, nil)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := client.Send(context.Background(), msg); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestServerTracksClientConnection(t *testing.T) {
	server, socketPath := startTestServer(t)

	if server.ClientConnected() {
		t.Fatal("no client should be connected yet")
	}
	client := newTestClient(t, socketPath)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !server.ClientConnected() {
		time.Sleep(10 * time.Millisecond)
	}
	if !server.ClientConnected() {
		t.Fatal("server never observed the client")
	}
	_ = client.Close()
}
