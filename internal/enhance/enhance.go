// Package enhance cleans captured audio before recognition: a noise gate for
// idle hum, spectral subtraction against a learned noise profile, automatic
// gain control, then a high-pass filter that strips machinery rumble. Every
// stage degrades gracefully; a stage that cannot run leaves the signal
// untouched rather than blocking the pipeline.
package enhance

import (
	"log/slog"
	"math"
	"sync"

	"voiceguard/internal/audio"
	"voiceguard/internal/logging"
)

const (
	noiseGateDB        = -40.0
	noiseGateScale     = 0.1
	overSubtraction    = 2.0
	magnitudeFloor     = 0.1
	agcTargetDB        = -12.0
	agcGainMin         = 0.1
	agcGainMax         = 10.0
	highpassCutoffHz   = 80.0
	noiseProfileFrames = 16
)

// Enhancer applies the enhancement chain to segments.
type Enhancer struct {
	logger *slog.Logger
	hpf    *highpass

	mu           sync.Mutex
	noiseProfile []float64
}

// New builds an enhancer for the given sample rate.
func New(sampleRate int, logger *slog.Logger) *Enhancer {
	return &Enhancer{
		logger: logging.NewComponentLogger(logger, "enhance"),
		hpf:    newHighpass(highpassCutoffHz, float64(sampleRate)),
	}
}

// Process runs the full chain over a segment and returns a new segment. The
// input is never mutated.
func (e *Enhancer) Process(segment *audio.Segment) *audio.Segment {
	signal := toFloat(segment.Samples)

	signal = e.noiseGate(signal)
	signal = e.spectralSubtract(signal)
	signal = e.agc(signal)
	signal = e.hpf.apply(signal)

	out := segment.Clone()
	out.Samples = toPCM(signal)
	return out
}

// LearnNoiseProfile averages the magnitude spectrum of samples assumed to be
// ambient noise. Later segments have this profile subtracted.
func (e *Enhancer) LearnNoiseProfile(samples []int16) {
	signal := toFloat(samples)
	if len(signal) < fftSize {
		return
	}

	profile := make([]float64, fftSize)
	frames := 0
	for start := 0; start+fftSize <= len(signal) && frames < noiseProfileFrames; start += fftSize {
		spectrum := make([]complex128, fftSize)
		for i := 0; i < fftSize; i++ {
			spectrum[i] = complex(signal[start+i], 0)
		}
		fft(spectrum)
		for i, bin := range spectrum {
			profile[i] += cmplxAbs(bin)
		}
		frames++
	}
	for i := range profile {
		profile[i] /= float64(frames)
	}

	e.mu.Lock()
	e.noiseProfile = profile
	e.mu.Unlock()
	e.logger.Info("noise profile learned", logging.Int("frames", frames))
}

// noiseGate attenuates segments whose level sits below the gate threshold.
func (e *Enhancer) noiseGate(signal []float64) []float64 {
	if rmsDB(signal) >= noiseGateDB {
		return signal
	}
	out := make([]float64, len(signal))
	for i, sample := range signal {
		out[i] = sample * noiseGateScale
	}
	return out
}

// spectralSubtract removes the learned noise spectrum frame by frame. With
// no profile the signal passes through unchanged.
func (e *Enhancer) spectralSubtract(signal []float64) []float64 {
	e.mu.Lock()
	profile := e.noiseProfile
	e.mu.Unlock()
	if profile == nil || len(signal) < fftSize {
		return signal
	}

	out := make([]float64, len(signal))
	copy(out, signal)

	spectrum := make([]complex128, fftSize)
	for start := 0; start+fftSize <= len(signal); start += fftSize {
		for i := 0; i < fftSize; i++ {
			spectrum[i] = complex(signal[start+i], 0)
		}
		fft(spectrum)
		for i, bin := range spectrum {
			mag := cmplxAbs(bin)
			phase := math.Atan2(imag(bin), real(bin))
			cleaned := mag - overSubtraction*profile[i]
			if floor := mag * magnitudeFloor; cleaned < floor {
				cleaned = floor
			}
			spectrum[i] = complex(cleaned*math.Cos(phase), cleaned*math.Sin(phase))
		}
		ifft(spectrum)
		for i := 0; i < fftSize; i++ {
			out[start+i] = real(spectrum[i])
		}
	}
	return out
}

// agc scales the signal toward the target level, with the gain clamped so a
// near-silent segment is not blown up into pure noise.
func (e *Enhancer) agc(signal []float64) []float64 {
	level := rmsDB(signal)
	if level <= -96 {
		return signal
	}
	gain := math.Pow(10, (agcTargetDB-level)/20)
	if gain < agcGainMin {
		gain = agcGainMin
	}
	if gain > agcGainMax {
		gain = agcGainMax
	}

	out := make([]float64, len(signal))
	for i, sample := range signal {
		scaled := sample * gain
		if scaled > 1 {
			scaled = 1
		} else if scaled < -1 {
			scaled = -1
		}
		out[i] = scaled
	}
	return out
}

func toFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, sample := range samples {
		out[i] = float64(sample) / 32768.0
	}
	return out
}

func toPCM(signal []float64) []int16 {
	out := make([]int16, len(signal))
	for i, sample := range signal {
		scaled := sample * 32767.0
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out[i] = int16(scaled)
	}
	return out
}

func rmsDB(signal []float64) float64 {
	if len(signal) == 0 {
		return -96
	}
	var sum float64
	for _, sample := range signal {
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(len(signal)))
	if rms <= 0 {
		return -96
	}
	return 20 * math.Log10(rms)
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
