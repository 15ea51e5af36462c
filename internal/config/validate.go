package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration consistency. It returns the first problem
// found; callers should treat any error as fatal for process startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir is required")
	}
	if c.Audio.SampleRate != 8000 && c.Audio.SampleRate != 16000 && c.Audio.SampleRate != 32000 && c.Audio.SampleRate != 48000 {
		return fmt.Errorf("audio.sample_rate %d is not a supported rate", c.Audio.SampleRate)
	}
	switch c.Audio.FrameMillis {
	case 10, 20, 30:
	default:
		return fmt.Errorf("audio.frame_millis must be 10, 20, or 30 (got %d)", c.Audio.FrameMillis)
	}
	// -1 disables frame analysis in favor of the plain energy detector.
	if c.Audio.VADAggressiveness < -1 || c.Audio.VADAggressiveness > 3 {
		return fmt.Errorf("audio.vad_aggressiveness must be -1 to 3 (got %d)", c.Audio.VADAggressiveness)
	}
	if c.Audio.SegmentSeconds < 1 || c.Audio.SegmentSeconds > 10 {
		return fmt.Errorf("audio.segment_seconds must be within [1, 10] (got %g)", c.Audio.SegmentSeconds)
	}
	if len(c.Recognition.CommandPhrases) == 0 {
		return fmt.Errorf("recognition.command_phrases must not be empty")
	}
	for _, phrase := range c.Recognition.CommandPhrases {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("recognition.command_phrases contains an empty phrase")
		}
	}
	if c.Recognition.Cloud.Enabled && strings.TrimSpace(c.Recognition.Cloud.BaseURL) == "" {
		return fmt.Errorf("recognition.cloud.base_url is required when cloud recognition is enabled")
	}
	if strings.TrimSpace(c.Shutdown.Command) == "" {
		return fmt.Errorf("shutdown.command is required")
	}
	return nil
}
