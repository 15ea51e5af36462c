package fusion

import (
	"context"
	"errors"
	"math"
	"testing"

	"voiceguard/internal/audio"
	"voiceguard/internal/logging"
	"voiceguard/internal/recognition"
)

type stubSource struct {
	name   string
	result *recognition.Result
	err    error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Recognize(context.Context, *audio.Segment) (*recognition.Result, error) {
	return s.result, s.err
}

func testSegment() *audio.Segment {
	return &audio.Segment{Samples: make([]int16, 16000), SampleRate: 16000}
}

func newTestEngine(threshold float64, sources ...recognition.Source) *Engine {
	matcher := recognition.NewMatcher([]string{"emergency shutdown", "kill switch"})
	return NewEngine(sources, matcher, func() float64 { return threshold }, logging.NewNop())
}

func TestProcessFusesCloudAndExactKeyword(t *testing.T) {
	cloud := &stubSource{
		name: recognition.SourceCloud,
		result: &recognition.Result{
			Text:       "emergency shutdown",
			Confidence: 0.9,
			Source:     recognition.SourceCloud,
		},
	}
	engine := newTestEngine(0.6, cloud)

	fused := engine.Process(context.Background(), testSegment())
	if fused == nil {
		t.Fatal("expected a fused command")
	}
	if fused.Command != "emergency shutdown" {
		t.Fatalf("unexpected command %q", fused.Command)
	}
	// Cloud contributes 0.9 at weight 0.6, the exact keyword verdict 1.0 at
	// weight 0.1.
	want := (0.9*0.6 + 1.0*0.1) / 0.7
	if math.Abs(fused.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %f, want %f", fused.Confidence, want)
	}
}

func TestProcessThresholdIsExclusive(t *testing.T) {
	cloud := &stubSource{
		name: recognition.SourceCloud,
		result: &recognition.Result{
			Text:       "kill switch",
			Confidence: 1.0,
			Source:     recognition.SourceCloud,
		},
	}
	// Fused confidence is exactly 1.0; a threshold of 1.0 must suppress it.
	engine := newTestEngine(1.0, cloud)
	if fused := engine.Process(context.Background(), testSegment()); fused != nil {
		t.Fatalf("confidence equal to threshold must not emit, got %+v", fused)
	}
}

func TestProcessIgnoresFailedSources(t *testing.T) {
	failing := &stubSource{name: recognition.SourceLocal, err: errors.New("engine crashed")}
	cloud := &stubSource{
		name: recognition.SourceCloud,
		result: &recognition.Result{
			Text:       "emergency shutdown",
			Confidence: 0.95,
			Source:     recognition.SourceCloud,
		},
	}
	engine := newTestEngine(0.6, failing, cloud)

	fused := engine.Process(context.Background(), testSegment())
	if fused == nil {
		t.Fatal("surviving source should still produce a command")
	}
}

func TestProcessNoMatchReturnsNil(t *testing.T) {
	cloud := &stubSource{
		name: recognition.SourceCloud,
		result: &recognition.Result{
			Text:       "please pass the salt",
			Confidence: 0.99,
			Source:     recognition.SourceCloud,
		},
	}
	engine := newTestEngine(0.6, cloud)
	if fused := engine.Process(context.Background(), testSegment()); fused != nil {
		t.Fatalf("non-command transcript must not emit, got %+v", fused)
	}
}

func TestProcessAllSourcesSilent(t *testing.T) {
	silent := &stubSource{name: recognition.SourceCloud}
	engine := newTestEngine(0.6, silent)
	if fused := engine.Process(context.Background(), testSegment()); fused != nil {
		t.Fatalf("no results must mean no command, got %+v", fused)
	}
}
