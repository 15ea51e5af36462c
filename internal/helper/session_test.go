package helper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voiceguard/internal/audio"
	"voiceguard/internal/fusion"
	"voiceguard/internal/ipc"
	"voiceguard/internal/logging"
	"voiceguard/internal/recognition"
	"voiceguard/internal/testsupport"
)

type scriptedSource struct {
	text       string
	confidence float64
}

func (s *scriptedSource) Name() string { return "cloud" }

func (s *scriptedSource) Recognize(context.Context, *audio.Segment) (*recognition.Result, error) {
	return &recognition.Result{
		Text:       s.text,
		Confidence: s.confidence,
		Source:     recognition.SourceCloud,
	}, nil
}

// received collects the message types and payloads a test server sees.
type received struct {
	cancels  chan string
	commands chan string
}

func startSessionServer(t *testing.T, socketPath string) *received {
	t.Helper()

	server := ipc.NewServer(socketPath, logging.NewNop())
	got := &received{
		cancels:  make(chan string, 4),
		commands: make(chan string, 4),
	}
	server.Handle(ipc.TypeCancelShutdown, func(_ context.Context, msg *ipc.Message) error {
		var payload ipc.CancelShutdownPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		got.cancels <- payload.Reason
		return nil
	})
	server.Handle(ipc.TypeCommandDetected, func(_ context.Context, msg *ipc.Message) error {
		var payload ipc.CommandDetectedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		got.commands <- payload.Command
		return nil
	})

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
		probe := ipc.NewClient(ipc.ClientConfig{
			SocketPath:     socketPath,
			ConnectTimeout: 100 * time.Millisecond,
			RetryInterval:  20 * time.Millisecond,
		}, logging.NewNop())
		if err := probe.Connect(context.Background()); err == nil {
			_ = probe.Close()
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
	return nil
}

func newTestSession(t *testing.T, transcript string, confidence float64) (*Session, *received) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.NewStore(t, cfg)
	got := startSessionServer(t, cfg.SocketPath())

	session, err := New(context.Background(), cfg, "", store, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session.engine = fusion.NewEngine(
		[]recognition.Source{&scriptedSource{text: transcript, confidence: confidence}},
		recognition.NewMatcher(cfg.Recognition.CommandPhrases),
		func() float64 { return 0.6 },
		logging.NewNop(),
	)
	if err := session.client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.client.Close() })
	return session, got
}

func testSegment() *audio.Segment {
	return &audio.Segment{
		Samples:    make([]int16, 1600),
		SampleRate: 16000,
		CapturedAt: time.Now(),
	}
}

func TestHandleSegmentSendsCancelForSpokenPhrase(t *testing.T) {
	phrases := []string{"cancel", "cancel shutdown", "abort shutdown", "never mind"}
	for _, phrase := range phrases {
		t.Run(phrase, func(t *testing.T) {
			session, got := newTestSession(t, phrase, 0.99)

			session.handleSegment(context.Background(), testSegment())

			select {
			case reason := <-got.cancels:
				if reason != phrase {
					t.Fatalf("cancel reason = %q, want %q", reason, phrase)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("spoken %q never produced a cancel message", phrase)
			}
			select {
			case command := <-got.commands:
				t.Fatalf("cancel phrase also delivered command %q", command)
			default:
			}
		})
	}
}

func TestHandleSegmentSendsDetectedCommand(t *testing.T) {
	session, got := newTestSession(t, "emergency shutdown", 0.9)

	session.handleSegment(context.Background(), testSegment())

	select {
	case command := <-got.commands:
		if command != "emergency shutdown" {
			t.Fatalf("command = %q", command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command phrase never delivered")
	}
	select {
	case reason := <-got.cancels:
		t.Fatalf("command phrase treated as cancel %q", reason)
	default:
	}
}

func TestIsCancelPhrase(t *testing.T) {
	session := &Session{cancelers: recognition.NewMatcher(cancelPhrases)}

	for _, phrase := range []string{"cancel", "cancel shutdown", "abort shutdown", "never mind"} {
		if !session.isCancelPhrase(phrase) {
			t.Errorf("isCancelPhrase(%q) = false", phrase)
		}
	}
	for _, phrase := range []string{"emergency shutdown", "kill switch", "keep going"} {
		if session.isCancelPhrase(phrase) {
			t.Errorf("isCancelPhrase(%q) = true", phrase)
		}
	}
}
