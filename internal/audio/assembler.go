package audio

import (
	"context"
	"log/slog"
	"time"

	"voiceguard/internal/logging"
)

// Assembler turns the frame stream into fixed-length segments with 50%
// overlap, forwarding only segments the detector scores as voiced. Overlap
// ensures a phrase spoken across a segment boundary still lands whole in at
// least one segment.
type Assembler struct {
	detector   Detector
	sampleRate int
	segmentLen int
	logger     *slog.Logger

	segments chan *Segment
	buffer   []int16
}

// NewAssembler builds an assembler producing segments of segmentSeconds.
// queueSize bounds the segment queue.
func NewAssembler(detector Detector, sampleRate int, segmentSeconds float64, queueSize int, logger *slog.Logger) *Assembler {
	if queueSize <= 0 {
		queueSize = 50
	}
	segmentLen := int(segmentSeconds * float64(sampleRate))
	return &Assembler{
		detector:   detector,
		sampleRate: sampleRate,
		segmentLen: segmentLen,
		logger:     logging.NewComponentLogger(logger, "assembler"),
		segments:   make(chan *Segment, queueSize),
		buffer:     make([]int16, 0, segmentLen),
	}
}

// Segments returns the queue of voiced segments. Closed when Run returns.
func (a *Assembler) Segments() <-chan *Segment { return a.segments }

// Run consumes frames until the channel closes or ctx is cancelled.
func (a *Assembler) Run(ctx context.Context, frames <-chan []int16) {
	defer close(a.segments)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			a.append(frame)
		}
	}
}

func (a *Assembler) append(frame []int16) {
	a.buffer = append(a.buffer, frame...)
	for len(a.buffer) >= a.segmentLen {
		a.emit(a.buffer[:a.segmentLen])
		// Retain the back half so phrases straddling the cut survive.
		half := a.segmentLen / 2
		a.buffer = append(a.buffer[:0], a.buffer[half:]...)
	}
}

func (a *Assembler) emit(samples []int16) {
	if !a.detector.IsVoice(samples, a.sampleRate) {
		return
	}
	segment := &Segment{
		Samples:    append([]int16(nil), samples...),
		SampleRate: a.sampleRate,
		CapturedAt: time.Now(),
	}
	select {
	case a.segments <- segment:
	default:
		// Recognition is behind; the oldest pending segment is stalest.
		select {
		case <-a.segments:
		default:
		}
		select {
		case a.segments <- segment:
		default:
		}
		a.logger.Warn("segment queue full, dropping oldest",
			logging.String(logging.FieldEventType, "backpressure"))
	}
}
