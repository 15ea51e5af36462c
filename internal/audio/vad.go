package audio

// Detector decides whether a run of frames contains speech.
type Detector interface {
	// IsVoice reports whether the given samples contain voice activity.
	IsVoice(samples []int16, sampleRate int) bool
}

// voiceFrameRatio is the fraction of frames that must score as speech for a
// window to count as voiced.
const voiceFrameRatio = 0.3

// FrameDetector classifies 30 ms frames by energy and zero-crossing rate and
// reports voice when at least 30% of the frames in a window are speech.
// Aggressiveness 0-3 raises the per-frame thresholds, trading missed quiet
// speech for fewer false positives in noisy shops.
type FrameDetector struct {
	aggressiveness int
	frameMillis    int
}

// NewFrameDetector returns a detector at the given aggressiveness (0-3,
// clamped) operating on frames of frameMillis.
func NewFrameDetector(aggressiveness, frameMillis int) *FrameDetector {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	switch frameMillis {
	case 10, 20, 30:
	default:
		frameMillis = 30
	}
	return &FrameDetector{aggressiveness: aggressiveness, frameMillis: frameMillis}
}

// IsVoice implements Detector.
func (d *FrameDetector) IsVoice(samples []int16, sampleRate int) bool {
	frameLen := sampleRate * d.frameMillis / 1000
	if frameLen == 0 || len(samples) < frameLen {
		return false
	}

	total := 0
	voiced := 0
	for start := 0; start+frameLen <= len(samples); start += frameLen {
		total++
		if d.frameIsSpeech(samples[start : start+frameLen]) {
			voiced++
		}
	}
	if total == 0 {
		return false
	}
	return float64(voiced)/float64(total) >= voiceFrameRatio
}

// frameIsSpeech combines an energy gate with a zero-crossing-rate band.
// Speech sits between the low-ZCR hum of machinery and the high-ZCR hiss of
// broadband noise.
func (d *FrameDetector) frameIsSpeech(frame []int16) bool {
	energyFloor := -45.0 + 3.0*float64(d.aggressiveness)
	if RMSdB(frame) < energyFloor {
		return false
	}

	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i] >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(len(frame))

	zcrMax := 0.35 - 0.025*float64(d.aggressiveness)
	return zcr >= 0.02 && zcr <= zcrMax
}

// EnergyDetector is the fallback used when frame analysis is disabled: any
// window whose RMS level clears the threshold counts as voice.
type EnergyDetector struct {
	ThresholdDB float64
}

// NewEnergyDetector returns a detector with the given dBFS threshold.
func NewEnergyDetector(thresholdDB float64) *EnergyDetector {
	return &EnergyDetector{ThresholdDB: thresholdDB}
}

// IsVoice implements Detector.
func (d *EnergyDetector) IsVoice(samples []int16, _ int) bool {
	return RMSdB(samples) > d.ThresholdDB
}
