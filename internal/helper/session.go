// Package helper runs the user-session side of VoiceGuard: microphone
// capture, enhancement, recognition, and fusion, with detected commands
// forwarded to the privileged service over IPC.
package helper

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"voiceguard/internal/audio"
	"voiceguard/internal/config"
	"voiceguard/internal/credentials"
	"voiceguard/internal/enhance"
	"voiceguard/internal/fusion"
	"voiceguard/internal/ipc"
	"voiceguard/internal/logging"
	"voiceguard/internal/recognition"
	"voiceguard/internal/settings"
)

// statusInterval is how often the helper reports capture statistics to the
// service.
const statusInterval = 30 * time.Second

// cancelPhrases abort a pending countdown when heard.
var cancelPhrases = []string{"cancel", "cancel shutdown", "abort shutdown", "never mind"}

// Session is one run of the helper pipeline.
type Session struct {
	cfg        *config.Config
	configPath string
	store      *settings.Store
	logger     *slog.Logger

	device    audio.Device
	capture   *audio.Capture
	assembler *audio.Assembler
	enhancer  *enhance.Enhancer
	engine    *fusion.Engine
	cancelers *recognition.Matcher
	client    *ipc.Client
	pool      *credentials.Pool

	noiseSuppression func() bool
}

// New wires the full pipeline from configuration. configPath may be empty
// when no file-backed config exists; config change watching is then
// disabled.
func New(ctx context.Context, cfg *config.Config, configPath string, store *settings.Store, logger *slog.Logger) (*Session, error) {
	detector := buildDetector(cfg)
	device := audio.NewExecDevice(cfg.Audio.CaptureCommand, cfg.Audio.CaptureArgs)
	capture := audio.NewCapture(device, detector, cfg.Audio.SampleRate, cfg.Audio.FrameMillis, cfg.Audio.CaptureQueueSize, logger)
	assembler := audio.NewAssembler(detector, cfg.Audio.SampleRate, cfg.Audio.SegmentSeconds, cfg.Audio.SegmentQueueSize, logger)
	enhancer := enhance.New(cfg.Audio.SampleRate, logger)

	matcher := recognition.NewMatcher(cfg.Recognition.CommandPhrases)

	var sources []recognition.Source
	var pool *credentials.Pool
	if cfg.Recognition.Cloud.Enabled {
		dailyLimit := store.GetInt(ctx, settings.KeyMaxDailyAPICalls, settings.DefaultMaxDailyAPICalls)
		if cfg.Recognition.Cloud.DailyLimit > 0 && cfg.Recognition.Cloud.DailyLimit < dailyLimit {
			dailyLimit = cfg.Recognition.Cloud.DailyLimit
		}
		var err error
		pool, err = credentials.NewPool(ctx, credentials.NewStore(store.DB()), dailyLimit, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, recognition.NewCloudSource(recognition.CloudConfig{
			BaseURL: cfg.Recognition.Cloud.BaseURL,
			Model:   cfg.Recognition.Cloud.Model,
			Timeout: time.Duration(cfg.Recognition.Cloud.TimeoutSeconds) * time.Second,
		}, pool, logger))
	}
	if cfg.Recognition.Local.Enabled {
		sources = append(sources, recognition.NewLocalSource(recognition.LocalConfig{
			Command:         cfg.Recognition.Local.Command,
			Args:            cfg.Recognition.Local.Args,
			Timeout:         time.Duration(cfg.Recognition.Local.TimeoutSeconds) * time.Second,
			FallbackURL:     cfg.Recognition.Local.FallbackURL,
			FallbackTimeout: time.Duration(cfg.Recognition.Local.FallbackTimeout) * time.Second,
		}, logger))
	}

	threshold := func() float64 {
		return store.GetFloat(context.Background(), settings.KeyConfidenceThreshold, settings.DefaultConfidenceThreshold)
	}
	engine := fusion.NewEngine(sources, matcher, threshold, logger)

	client := ipc.NewClient(ipc.ClientConfig{
		SocketPath:     cfg.SocketPath(),
		ConnectTimeout: time.Duration(cfg.IPC.ConnectTimeoutSeconds) * time.Second,
		RetryInterval:  time.Duration(cfg.IPC.RetryIntervalMillis) * time.Millisecond,
		AckTimeout:     time.Duration(cfg.IPC.AckTimeoutSeconds) * time.Second,
	}, logger)

	return &Session{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "helper"),
		device:     device,
		capture:    capture,
		assembler:  assembler,
		enhancer:   enhancer,
		engine:     engine,
		cancelers:  recognition.NewMatcher(cancelPhrases),
		client:     client,
		pool:       pool,
		noiseSuppression: func() bool {
			return store.GetBool(context.Background(), settings.KeyNoiseSuppression, cfg.Audio.NoiseSuppression)
		},
	}, nil
}

func buildDetector(cfg *config.Config) audio.Detector {
	if cfg.Audio.VADAggressiveness >= 0 {
		return audio.NewFrameDetector(cfg.Audio.VADAggressiveness, cfg.Audio.FrameMillis)
	}
	return audio.NewEnergyDetector(cfg.Audio.EnergyThresholdDB)
}

// Run connects to the service and processes audio until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	defer s.client.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Room tone is sampled before capture claims the device, so the opening
	// moments feed the noise profile instead of recognition.
	s.learnAmbientNoise(runCtx)

	var captureErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		captureErr = s.capture.Run(runCtx)
		cancel()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.statusLoop(runCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchConfig(runCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.assembler.Run(runCtx, s.capture.Frames())
	}()

	s.processSegments(runCtx)

	cancel()
	wg.Wait()
	if ctx.Err() == nil && captureErr != nil {
		return captureErr
	}
	return nil
}

// learnAmbientNoise reads a short burst straight from the device and hands
// it to the enhancer as the noise profile. Capture only forwards voiced
// frames, so room tone has to be taken before the pipeline starts. Failure
// here is non-fatal: without a profile spectral subtraction is skipped.
func (s *Session) learnAmbientNoise(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := s.device.Open(sampleCtx)
	if err != nil {
		s.logger.Warn("noise profile sampling skipped", logging.Error(err))
		return
	}
	defer stream.Close()

	raw := make([]byte, s.cfg.Audio.SampleRate*2*2) // two seconds of S16 mono
	if _, err := io.ReadFull(stream, raw); err != nil {
		s.logger.Warn("noise profile sampling incomplete", logging.Error(err))
		return
	}
	s.enhancer.LearnNoiseProfile(audio.DecodePCM(raw))
}

func (s *Session) processSegments(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case segment, ok := <-s.assembler.Segments():
			if !ok {
				return
			}
			s.handleSegment(ctx, segment)
		}
	}
}

func (s *Session) handleSegment(ctx context.Context, segment *audio.Segment) {
	if s.noiseSuppression() {
		segment = s.enhancer.Process(segment)
	}

	// Cancel phrases are screened on the raw transcripts: they are not
	// command phrases, so they never survive fusion.
	results := s.engine.Collect(ctx, segment)
	for _, result := range results {
		if s.isCancelPhrase(result.Text) {
			s.SendCancel(ctx, result.Text)
			return
		}
	}

	command := s.engine.FuseResults(results)
	if command == nil {
		return
	}

	msg, err := ipc.NewMessage(ipc.TypeCommandDetected, ipc.CommandDetectedPayload{
		Command:      command.Command,
		OriginalText: command.OriginalText,
		Confidence:   command.Confidence,
		Source:       command.Source,
	})
	if err != nil {
		s.logger.Error("encode command message", logging.Error(err))
		return
	}
	if err := s.client.Send(ctx, msg); err != nil {
		s.logger.Error("command delivery failed",
			logging.String("command", command.Command),
			logging.String(logging.FieldMessageID, msg.MessageID),
			logging.Error(err))
		return
	}
	s.logger.Warn("command delivered",
		logging.String("command", command.Command),
		logging.Float64("confidence", command.Confidence))
}

func (s *Session) isCancelPhrase(text string) bool {
	match := s.cancelers.Match(text)
	return match != nil && match.Confidence >= 0.8
}

// SendCancel asks the service to abort a pending countdown.
func (s *Session) SendCancel(ctx context.Context, reason string) {
	msg, err := ipc.NewMessage(ipc.TypeCancelShutdown, ipc.CancelShutdownPayload{Reason: reason})
	if err != nil {
		s.logger.Error("encode cancel message", logging.Error(err))
		return
	}
	if err := s.client.Send(ctx, msg); err != nil {
		s.logger.Error("cancel delivery failed", logging.Error(err))
		return
	}
	s.logger.Warn("cancel delivered", logging.String("reason", reason))
}

func (s *Session) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.capture.Stats().Snapshot()
			apiCalls := 0
			if s.pool != nil {
				for _, count := range s.pool.UsageSnapshot() {
					apiCalls += count
				}
			}
			msg, err := ipc.NewMessage(ipc.TypeStatusUpdate, ipc.StatusUpdatePayload{
				Component:     "helper",
				State:         s.client.State().String(),
				Frames:        snap.Frames,
				VoicedRatio:   snap.VoicedRatio,
				AvgLevelDB:    snap.AvgLevelDB,
				PeakLevelDB:   snap.PeakLevelDB,
				Dropped:       snap.Dropped,
				APICallsToday: apiCalls,
			})
			if err != nil {
				continue
			}
			if err := s.client.Send(ctx, msg); err != nil {
				s.logger.Debug("status delivery failed", logging.Error(err))
			}
		}
	}
}

// watchConfig announces config file edits to the service so runtime values
// are re-read.
func (s *Session) watchConfig(ctx context.Context) {
	if strings.TrimSpace(s.configPath) == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("config watcher unavailable", logging.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.configPath); err != nil {
		s.logger.Warn("config watch failed",
			logging.String("path", s.configPath),
			logging.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.logger.Info("configuration file changed", logging.String("path", event.Name))
			msg, msgErr := ipc.NewMessage(ipc.TypeConfigChange, ipc.ConfigChangePayload{})
			if msgErr != nil {
				continue
			}
			if sendErr := s.client.Send(ctx, msg); sendErr != nil {
				s.logger.Debug("config change delivery failed", logging.Error(sendErr))
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", logging.Error(watchErr))
		}
	}
}
