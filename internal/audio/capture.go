package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"voiceguard/internal/logging"
)

// Stats aggregates capture counters for status reporting.
type Stats struct {
	mu          sync.Mutex
	frames      uint64
	voiced      uint64
	dropped     uint64
	sumRMSdB    float64
	peakdB      float64
	lastCapture time.Time
}

// Snapshot is a point-in-time copy of capture statistics.
type Snapshot struct {
	Frames      uint64
	VoicedRatio float64
	Dropped     uint64
	AvgLevelDB  float64
	PeakLevelDB float64
	LastCapture time.Time
}

func (s *Stats) observe(frame []int16, voiced bool) {
	rms := RMSdB(frame)
	peak := PeakdB(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if voiced {
		s.voiced++
	}
	s.sumRMSdB += rms
	if peak > s.peakdB || s.frames == 1 {
		s.peakdB = peak
	}
	s.lastCapture = time.Now()
}

func (s *Stats) drop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Frames:      s.frames,
		Dropped:     s.dropped,
		PeakLevelDB: s.peakdB,
		LastCapture: s.lastCapture,
	}
	if s.frames > 0 {
		snap.VoicedRatio = float64(s.voiced) / float64(s.frames)
		snap.AvgLevelDB = s.sumRMSdB / float64(s.frames)
	}
	return snap
}

// Capture reads fixed-size PCM frames from a device into a bounded queue.
// Only frames the detector scores as voiced are enqueued; when the queue is
// full the oldest frame is discarded so capture never stalls behind a slow
// consumer.
type Capture struct {
	device      Device
	detector    Detector
	sampleRate  int
	frameMillis int
	logger      *slog.Logger
	stats       *Stats

	frames chan []int16
}

// NewCapture builds a capture engine. queueSize bounds the frame queue.
func NewCapture(device Device, detector Detector, sampleRate, frameMillis, queueSize int, logger *slog.Logger) *Capture {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Capture{
		device:      device,
		detector:    detector,
		sampleRate:  sampleRate,
		frameMillis: frameMillis,
		logger:      logging.NewComponentLogger(logger, "capture"),
		stats:       &Stats{},
		frames:      make(chan []int16, queueSize),
	}
}

// Frames returns the queue of captured frames. Closed when Run returns.
func (c *Capture) Frames() <-chan []int16 { return c.frames }

// Stats returns the capture counters.
func (c *Capture) Stats() *Stats { return c.stats }

// Run captures until ctx is cancelled or the device fails. There is no
// device re-scan: a capture failure ends the run and the watchdog escalation
// path is the recovery route. The frame channel is closed on return.
func (c *Capture) Run(ctx context.Context) error {
	defer close(c.frames)

	err := c.captureOnce(ctx)
	if err != nil && ctx.Err() == nil {
		c.logger.Error("capture stopped",
			logging.String(logging.FieldImpact, "no audio input"),
			logging.Error(err))
		return err
	}
	return nil
}

func (c *Capture) captureOnce(ctx context.Context) error {
	stream, err := c.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	defer stream.Close()

	c.logger.Info("capture stream open",
		logging.Int("sample_rate", c.sampleRate),
		logging.Int("frame_millis", c.frameMillis))

	frameBytes := c.sampleRate * c.frameMillis / 1000 * 2
	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(stream, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errors.New("capture stream ended")
			}
			return err
		}
		frame := DecodePCM(buf)
		voiced := c.detector.IsVoice(frame, c.sampleRate)
		c.stats.observe(frame, voiced)
		if voiced {
			c.enqueue(frame)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// enqueue adds a frame, evicting the oldest on overflow.
func (c *Capture) enqueue(frame []int16) {
	select {
	case c.frames <- frame:
		return
	default:
	}
	select {
	case <-c.frames:
		c.stats.drop()
		if c.stats.Snapshot().Dropped%100 == 1 {
			c.logger.Warn("frame queue full, dropping oldest",
				logging.String(logging.FieldEventType, "backpressure"))
		}
	default:
	}
	select {
	case c.frames <- frame:
	default:
	}
}
