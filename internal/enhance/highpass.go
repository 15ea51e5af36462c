package enhance

import "math"

// biquad is one second-order IIR section in direct form II transposed.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// newHighpassBiquad computes RBJ cookbook high-pass coefficients.
func newHighpassBiquad(cutoff, sampleRate, q float64) biquad {
	omega := 2 * math.Pi * cutoff / sampleRate
	sinw := math.Sin(omega)
	cosw := math.Cos(omega)
	alpha := sinw / (2 * q)

	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f biquad) apply(signal []float64) []float64 {
	out := make([]float64, len(signal))
	var z1, z2 float64
	for i, x := range signal {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		out[i] = y
	}
	return out
}

// highpass is a fourth-order Butterworth filter built from two cascaded
// biquad sections.
type highpass struct {
	sections [2]biquad
}

func newHighpass(cutoff, sampleRate float64) *highpass {
	// Butterworth pole Q values for a fourth-order cascade.
	return &highpass{sections: [2]biquad{
		newHighpassBiquad(cutoff, sampleRate, 0.54119610),
		newHighpassBiquad(cutoff, sampleRate, 1.30656296),
	}}
}

func (h *highpass) apply(signal []float64) []float64 {
	out := h.sections[0].apply(signal)
	return h.sections[1].apply(out)
}
