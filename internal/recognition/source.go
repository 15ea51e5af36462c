// Package recognition defines the speech recognition sources that compete to
// transcribe each audio segment: a cloud transcription API, a local offline
// engine, and a direct keyword matcher. Sources are independent; any one of
// them failing leaves the others running.
package recognition

import (
	"context"

	"voiceguard/internal/audio"
)

// Result is one source's transcription of a segment.
type Result struct {
	Text       string
	Confidence float64
	Source     string
	Metadata   map[string]string
}

// Source transcribes audio segments. Recognize returns (nil, nil) when the
// source has nothing usable to say about the segment; an error means the
// source itself failed.
type Source interface {
	Name() string
	Recognize(ctx context.Context, segment *audio.Segment) (*Result, error)
}

// Source name constants used in fusion weighting and logs.
const (
	SourceCloud   = "cloud"
	SourceLocal   = "local"
	SourceKeyword = "keyword"
)
