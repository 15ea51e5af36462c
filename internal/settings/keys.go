package settings

import "context"

// Recognized setting keys. The configuration tool writes these; the core
// only reads them (and seeds defaults on first run).
const (
	KeyTestMode              = "test_mode"
	KeyConfirmationDelay     = "confirmation_delay"
	KeyConfidenceThreshold   = "confidence_threshold"
	KeyMicrophoneSensitivity = "microphone_sensitivity"
	KeyNoiseSuppression      = "noise_suppression"
	KeyMaxDailyAPICalls      = "max_daily_api_calls"
	KeyAPITimeout            = "api_timeout"
)

// Defaults for the recognized keys.
const (
	DefaultConfirmationDelay   = 3
	DefaultConfidenceThreshold = 0.6
	DefaultMaxDailyAPICalls    = 1500
	DefaultAPITimeoutSeconds   = 5.0
)

// SeedDefaults inserts defaults for any recognized key that is absent.
// Existing values are never overwritten.
func (s *Store) SeedDefaults(ctx context.Context) error {
	defaults := map[string]any{
		KeyTestMode:              false,
		KeyConfirmationDelay:     DefaultConfirmationDelay,
		KeyConfidenceThreshold:   DefaultConfidenceThreshold,
		KeyMicrophoneSensitivity: 0.8,
		KeyNoiseSuppression:      true,
		KeyMaxDailyAPICalls:      DefaultMaxDailyAPICalls,
		KeyAPITimeout:            DefaultAPITimeoutSeconds,
	}
	for key, value := range defaults {
		if _, ok, err := s.raw(ctx, key); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
