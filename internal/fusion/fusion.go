// Package fusion combines the verdicts of all recognition sources into a
// single go/no-go decision per audio segment. Each source's confidence is
// weighted by how much we trust that source, and a command is emitted only
// when the weighted confidence clears the configured threshold.
package fusion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voiceguard/internal/audio"
	"voiceguard/internal/logging"
	"voiceguard/internal/recognition"
)

// Source trust weights. Cloud transcription is the most reliable, the local
// engine is serviceable, and bare keyword matches are a tiebreaker only.
var sourceWeights = map[string]float64{
	recognition.SourceCloud: 0.6,
	recognition.SourceLocal: 0.3,
	"keyword_exact":         0.1,
	"keyword_fuzzy":         0.05,
}

// unknownSourceWeight applies to sources without an entry above.
const unknownSourceWeight = 0.1

// FusedCommand is an emitted shutdown trigger.
type FusedCommand struct {
	Command      string
	OriginalText string
	Confidence   float64
	Source       string
	Timestamp    time.Time
}

// Engine fans a segment out to every source, matches the transcripts against
// the command phrases, and fuses the per-source confidences.
type Engine struct {
	sources   []recognition.Source
	matcher   *recognition.Matcher
	threshold func() float64
	logger    *slog.Logger
}

// NewEngine builds a fusion engine. threshold is read per segment so the
// runtime-adjustable setting takes effect without a restart.
func NewEngine(sources []recognition.Source, matcher *recognition.Matcher, threshold func() float64, logger *slog.Logger) *Engine {
	return &Engine{
		sources:   sources,
		matcher:   matcher,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "fusion"),
	}
}

// contribution is one source's matched verdict for the segment.
type contribution struct {
	source     string
	command    string
	text       string
	confidence float64
}

// Process runs every source over the segment and returns a fused command, or
// nil when nothing clears the threshold.
func (e *Engine) Process(ctx context.Context, segment *audio.Segment) *FusedCommand {
	return e.FuseResults(e.Collect(ctx, segment))
}

// FuseResults matches the transcripts against the command phrases and fuses
// the per-source confidences. Returns nil when nothing clears the threshold.
func (e *Engine) FuseResults(results []*recognition.Result) *FusedCommand {
	if len(results) == 0 {
		return nil
	}

	contributions := make([]contribution, 0, len(results))
	for _, result := range results {
		match := e.matcher.Match(result.Text)
		if match == nil {
			continue
		}
		contributions = append(contributions, contribution{
			source:     result.Source,
			command:    match.Command,
			text:       result.Text,
			confidence: result.Confidence * match.Confidence,
		})
		// A transcript that is itself a command phrase also counts as a
		// keyword verdict, exact or fuzzy per how it matched.
		keywordSource := "keyword_fuzzy"
		if match.Exact() {
			keywordSource = "keyword_exact"
		}
		contributions = append(contributions, contribution{
			source:     keywordSource,
			command:    match.Command,
			text:       result.Text,
			confidence: match.Confidence,
		})
	}
	if len(contributions) == 0 {
		return nil
	}

	return e.fuse(contributions)
}

// Collect fans the segment out to all sources concurrently and waits for
// every one. A failed source contributes nothing. Callers that need the raw
// transcripts (the helper screens them for cancel phrases) use this directly
// and pass the results on to FuseResults.
func (e *Engine) Collect(ctx context.Context, segment *audio.Segment) []*recognition.Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*recognition.Result
	)
	for _, source := range e.sources {
		wg.Add(1)
		go func(source recognition.Source) {
			defer wg.Done()
			result, err := source.Recognize(ctx, segment)
			if err != nil {
				e.logger.Warn("recognition source failed",
					logging.String(logging.FieldSource, source.Name()),
					logging.Error(err))
				return
			}
			if result == nil {
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(source)
	}
	wg.Wait()
	return results
}

// fuse computes the weighted confidence over the dominant command.
func (e *Engine) fuse(contributions []contribution) *FusedCommand {
	// Pick the command most sources agree on; ties go to higher summed
	// confidence.
	byCommand := make(map[string][]contribution)
	for _, c := range contributions {
		byCommand[c.command] = append(byCommand[c.command], c)
	}
	var chosen []contribution
	for _, group := range byCommand {
		if len(group) > len(chosen) || (len(group) == len(chosen) && sumConfidence(group) > sumConfidence(chosen)) {
			chosen = group
		}
	}

	var weighted, totalWeight float64
	best := chosen[0]
	for _, c := range chosen {
		weight, ok := sourceWeights[c.source]
		if !ok {
			weight = unknownSourceWeight
		}
		weighted += c.confidence * weight
		totalWeight += weight
		if c.confidence > best.confidence {
			best = c
		}
	}
	if totalWeight == 0 {
		return nil
	}
	confidence := weighted / totalWeight

	threshold := e.threshold()
	if confidence <= threshold {
		e.logger.Debug("fused confidence below threshold",
			logging.String("command", best.command),
			logging.Float64("confidence", confidence),
			logging.Float64("threshold", threshold))
		return nil
	}

	e.logger.Info("command detected",
		logging.String("command", best.command),
		logging.String(logging.FieldSource, best.source),
		logging.Float64("confidence", confidence),
		logging.Int("sources", len(chosen)))

	return &FusedCommand{
		Command:      best.command,
		OriginalText: best.text,
		Confidence:   confidence,
		Source:       best.source,
		Timestamp:    time.Now(),
	}
}

func sumConfidence(group []contribution) float64 {
	var sum float64
	for _, c := range group {
		sum += c.confidence
	}
	return sum
}
