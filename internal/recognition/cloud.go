package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"voiceguard/internal/audio"
	"voiceguard/internal/credentials"
	"voiceguard/internal/logging"
)

// CloudConfig configures the cloud transcription source.
type CloudConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// CloudSource sends segments to a hosted transcription API, rotating through
// the credential pool. Every failure mode (no credential, timeout, non-200,
// malformed body) resolves to a nil result so the pipeline keeps moving on
// the remaining sources.
type CloudSource struct {
	cfg    CloudConfig
	pool   *credentials.Pool
	client *http.Client
	logger *slog.Logger
}

// NewCloudSource builds a cloud source over the given credential pool.
func NewCloudSource(cfg CloudConfig, pool *credentials.Pool, logger *slog.Logger) *CloudSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &CloudSource{
		cfg:    cfg,
		pool:   pool,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewComponentLogger(logger, "cloud-recognition"),
	}
}

// Name implements Source.
func (s *CloudSource) Name() string { return SourceCloud }

type transcribeRequest struct {
	Model      string `json:"model"`
	AudioWAV   string `json:"audio_wav"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language"`
}

type transcribeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize implements Source.
func (s *CloudSource) Recognize(ctx context.Context, segment *audio.Segment) (*Result, error) {
	cred, err := s.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, credentials.ErrNoneAvailable) {
			s.logger.Debug("no credential available, skipping cloud recognition")
			return nil, nil
		}
		return nil, err
	}

	payload, err := json.Marshal(transcribeRequest{
		Model:      s.cfg.Model,
		AudioWAV:   base64.StdEncoding.EncodeToString(audio.EncodeWAV(segment)),
		SampleRate: segment.SampleRate,
		Language:   "en",
	})
	if err != nil {
		return nil, fmt.Errorf("encode transcription request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		s.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("cloud transcription request failed", logging.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.pool.MarkExhausted(ctx, cred.ID)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Warn("cloud transcription rejected",
			logging.Int("status", resp.StatusCode),
			logging.String("body", string(body)))
		return nil, nil
	}

	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		s.logger.Warn("cloud transcription body unreadable", logging.Error(err))
		return nil, nil
	}
	if decoded.Text == "" {
		return nil, nil
	}
	confidence := decoded.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.9
	}
	return &Result{
		Text:       decoded.Text,
		Confidence: confidence,
		Source:     SourceCloud,
		Metadata: map[string]string{
			"model":         s.cfg.Model,
			"credential_id": strconv.FormatInt(cred.ID, 10),
		},
	}, nil
}
