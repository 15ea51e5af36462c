// Package audio owns microphone capture, voice activity detection, and the
// assembly of raw PCM frames into overlapping segments ready for
// recognition. All audio is 16-bit signed little-endian mono.
package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Segment is a contiguous run of PCM samples captured from the microphone.
type Segment struct {
	Samples    []int16
	SampleRate int
	CapturedAt time.Time
}

// Duration returns the segment length in wall time.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Clone returns a deep copy. Segments cross goroutine boundaries, so
// consumers that mutate samples must clone first.
func (s *Segment) Clone() *Segment {
	samples := make([]int16, len(s.Samples))
	copy(samples, s.Samples)
	return &Segment{Samples: samples, SampleRate: s.SampleRate, CapturedAt: s.CapturedAt}
}

// RMSdB returns the root-mean-square level of samples in dBFS. Silence
// returns -96.
func RMSdB(samples []int16) float64 {
	if len(samples) == 0 {
		return -96
	}
	var sum float64
	for _, sample := range samples {
		value := float64(sample) / 32768.0
		sum += value * value
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return -96
	}
	db := 20 * math.Log10(rms)
	if db < -96 {
		db = -96
	}
	return db
}

// PeakdB returns the peak sample level in dBFS.
func PeakdB(samples []int16) float64 {
	var peak int16
	for _, sample := range samples {
		if sample > peak {
			peak = sample
		} else if -sample > peak {
			peak = -sample
		}
	}
	if peak == 0 {
		return -96
	}
	return 20 * math.Log10(float64(peak)/32768.0)
}

// EncodeWAV wraps the segment in a minimal RIFF/WAVE container for handoff
// to recognizers that expect a file-shaped payload.
func EncodeWAV(segment *Segment) []byte {
	dataLen := len(segment.Samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(segment.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(segment.SampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, sample := range segment.Samples {
		binary.Write(buf, binary.LittleEndian, sample)
	}
	return buf.Bytes()
}

// DecodePCM converts raw little-endian S16 bytes into samples. A trailing
// odd byte is dropped.
func DecodePCM(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples
}
