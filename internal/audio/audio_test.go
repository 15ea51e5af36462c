package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"voiceguard/internal/logging"
)

func sineWave(freq float64, sampleRate, n int, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestRMSdB(t *testing.T) {
	if got := RMSdB(nil); got != -96 {
		t.Fatalf("empty RMS = %v", got)
	}
	if got := RMSdB(make([]int16, 480)); got != -96 {
		t.Fatalf("silence RMS = %v", got)
	}

	// A full-scale sine sits near -3 dBFS.
	tone := sineWave(440, 16000, 16000, 1.0)
	if got := RMSdB(tone); got < -3.5 || got > -2.5 {
		t.Fatalf("full-scale sine RMS = %v, want about -3", got)
	}
}

func TestEnergyDetector(t *testing.T) {
	d := NewEnergyDetector(-30)
	if d.IsVoice(make([]int16, 480), 16000) {
		t.Fatal("silence must not count as voice")
	}
	if !d.IsVoice(sineWave(440, 16000, 480, 0.5), 16000) {
		t.Fatal("loud tone must count as voice")
	}
}

func TestFrameDetector(t *testing.T) {
	d := NewFrameDetector(1, 30)
	if d.IsVoice(make([]int16, 16000), 16000) {
		t.Fatal("silence must not be voiced")
	}

	// 440 Hz at half scale has speech-like energy and zero-crossing rate.
	if !d.IsVoice(sineWave(440, 16000, 16000, 0.5), 16000) {
		t.Fatal("sustained tone in the speech band must be voiced")
	}
}

func TestFrameDetectorClampsAggressiveness(t *testing.T) {
	d := NewFrameDetector(9, 25)
	if d.aggressiveness != 3 {
		t.Fatalf("aggressiveness = %d, want clamp to 3", d.aggressiveness)
	}
	if d.frameMillis != 30 {
		t.Fatalf("frameMillis = %d, want default 30", d.frameMillis)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	segment := &Segment{
		Samples:    []int16{0, 100, -100, 32767},
		SampleRate: 16000,
		CapturedAt: time.Now(),
	}
	wav := EncodeWAV(segment)

	if len(wav) != 44+8 {
		t.Fatalf("wav length = %d", len(wav))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d", rate)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Fatalf("channels = %d", channels)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != 8 {
		t.Fatalf("data length = %d", dataLen)
	}
}

func TestDecodePCM(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x7F}
	samples := DecodePCM(raw)
	want := []int16{1, -1, -32768}
	if len(samples) != len(want) {
		t.Fatalf("decoded %d samples", len(samples))
	}
	for i, sample := range want {
		if samples[i] != sample {
			t.Fatalf("sample %d = %d, want %d", i, samples[i], sample)
		}
	}
}

type acceptAll struct{}

func (acceptAll) IsVoice([]int16, int) bool { return true }

func TestAssemblerOverlap(t *testing.T) {
	// Segment length 4 samples at a 1 kHz rate keeps the arithmetic visible.
	assembler := NewAssembler(acceptAll{}, 1000, 0.004, 10, logging.NewNop())

	frames := make(chan []int16, 2)
	frames <- []int16{1, 2, 3, 4}
	frames <- []int16{5, 6, 7, 8}
	close(frames)

	assembler.Run(context.Background(), frames)

	var got [][]int16
	for segment := range assembler.Segments() {
		got = append(got, segment.Samples)
	}
	want := [][]int16{
		{1, 2, 3, 4},
		{3, 4, 5, 6},
		{5, 6, 7, 8},
	}
	if len(got) != len(want) {
		t.Fatalf("emitted %d segments, want %d", len(got), len(want))
	}
	for i, segment := range want {
		for j, sample := range segment {
			if got[i][j] != sample {
				t.Fatalf("segment %d = %v, want %v", i, got[i], segment)
			}
		}
	}
}

type rejectAll struct{}

func (rejectAll) IsVoice([]int16, int) bool { return false }

func TestAssemblerSkipsUnvoicedSegments(t *testing.T) {
	assembler := NewAssembler(rejectAll{}, 1000, 0.004, 10, logging.NewNop())

	frames := make(chan []int16, 1)
	frames <- []int16{1, 2, 3, 4, 5, 6, 7, 8}
	close(frames)

	assembler.Run(context.Background(), frames)

	if _, ok := <-assembler.Segments(); ok {
		t.Fatal("unvoiced audio must not produce segments")
	}
}
