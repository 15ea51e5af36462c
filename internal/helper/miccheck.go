package helper

import (
	"context"
	"fmt"
	"io"
	"time"

	"voiceguard/internal/audio"
	"voiceguard/internal/config"
)

// MicReport summarizes a short microphone level check.
type MicReport struct {
	Duration    time.Duration
	Frames      int
	AvgLevelDB  float64
	PeakLevelDB float64
	VoicedRatio float64
}

// Healthy reports whether the microphone produced a plausible signal: some
// frames arrived and the level is above the noise floor.
func (r MicReport) Healthy() bool {
	return r.Frames > 0 && r.AvgLevelDB > -90
}

// CheckMicrophone captures for the given duration and reports observed
// levels. Used by the CLI to verify the capture chain before arming.
func CheckMicrophone(ctx context.Context, cfg *config.Config, duration time.Duration) (MicReport, error) {
	device := audio.NewExecDevice(cfg.Audio.CaptureCommand, cfg.Audio.CaptureArgs)
	detector := audio.NewFrameDetector(cfg.Audio.VADAggressiveness, cfg.Audio.FrameMillis)

	checkCtx, cancel := context.WithTimeout(ctx, duration+2*time.Second)
	defer cancel()

	stream, err := device.Open(checkCtx)
	if err != nil {
		return MicReport{}, fmt.Errorf("open capture device: %w", err)
	}
	defer stream.Close()

	frameBytes := cfg.Audio.SampleRate * cfg.Audio.FrameMillis / 1000 * 2
	buf := make([]byte, frameBytes)
	report := MicReport{Duration: duration, PeakLevelDB: -96}
	var sumDB float64
	voiced := 0

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if checkCtx.Err() != nil {
			break
		}
		if _, err := io.ReadFull(stream, buf); err != nil {
			return report, fmt.Errorf("read capture stream: %w", err)
		}
		frame := audio.DecodePCM(buf)
		report.Frames++
		sumDB += audio.RMSdB(frame)
		if peak := audio.PeakdB(frame); peak > report.PeakLevelDB {
			report.PeakLevelDB = peak
		}
		if detector.IsVoice(frame, cfg.Audio.SampleRate) {
			voiced++
		}
	}

	if report.Frames > 0 {
		report.AvgLevelDB = sumDB / float64(report.Frames)
		report.VoicedRatio = float64(voiced) / float64(report.Frames)
	} else {
		report.AvgLevelDB = -96
	}
	return report, nil
}
