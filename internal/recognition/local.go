package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"voiceguard/internal/audio"
	"voiceguard/internal/logging"
)

// LocalConfig configures the offline recognition source.
type LocalConfig struct {
	Command         string
	Args            []string
	Timeout         time.Duration
	FallbackURL     string
	FallbackTimeout time.Duration
}

// LocalSource runs an offline speech engine as a child process, piping WAV
// audio to stdin and reading the transcript from stdout. When an HTTP
// fallback endpoint is configured both are tried and the higher-confidence
// transcript wins.
type LocalSource struct {
	cfg    LocalConfig
	client *http.Client
	logger *slog.Logger
}

// NewLocalSource builds a local source.
func NewLocalSource(cfg LocalConfig, logger *slog.Logger) *LocalSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 5 * time.Second
	}
	return &LocalSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FallbackTimeout},
		logger: logging.NewComponentLogger(logger, "local-recognition"),
	}
}

// Name implements Source.
func (s *LocalSource) Name() string { return SourceLocal }

// Recognize implements Source.
func (s *LocalSource) Recognize(ctx context.Context, segment *audio.Segment) (*Result, error) {
	wav := audio.EncodeWAV(segment)

	best := s.recognizeExec(ctx, wav)
	if s.cfg.FallbackURL != "" {
		if fallback := s.recognizeHTTP(ctx, wav); fallback != nil {
			if best == nil || fallback.Confidence > best.Confidence {
				best = fallback
			}
		}
	}
	return best, nil
}

func (s *LocalSource) recognizeExec(ctx context.Context, wav []byte) *Result {
	if s.cfg.Command == "" {
		return nil
	}
	execCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, s.cfg.Command, s.cfg.Args...)
	cmd.Stdin = bytes.NewReader(wav)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		s.logger.Warn("local engine failed",
			logging.String(logging.FieldCommand, s.cfg.Command),
			logging.Error(err))
		return nil
	}
	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil
	}
	return &Result{
		Text:       text,
		Confidence: 0.7,
		Source:     SourceLocal,
		Metadata:   map[string]string{"engine": s.cfg.Command},
	}
}

func (s *LocalSource) recognizeHTTP(ctx context.Context, wav []byte) *Result {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.FallbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.FallbackURL, bytes.NewReader(wav))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("local fallback unreachable", logging.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var decoded struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil
	}
	if decoded.Text == "" {
		return nil
	}
	confidence := decoded.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	return &Result{
		Text:       decoded.Text,
		Confidence: confidence,
		Source:     SourceLocal,
		Metadata:   map[string]string{"engine": "http-fallback"},
	}
}
