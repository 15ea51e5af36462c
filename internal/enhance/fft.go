package enhance

import "math"

// fftSize is the analysis window for spectral subtraction. Power of two so
// the radix-2 transform applies directly.
const fftSize = 512

// fft computes an in-place radix-2 Cooley-Tukey transform. len(data) must be
// a power of two.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			data[i], data[j] = data[j], data[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wBase := complex(math.Cos(angle), math.Sin(angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := data[start+k]
				v := data[start+k+length/2] * w
				data[start+k] = u + v
				data[start+k+length/2] = u - v
				w *= wBase
			}
		}
	}
}

// ifft computes the inverse transform in place.
func ifft(data []complex128) {
	for i := range data {
		data[i] = complex(real(data[i]), -imag(data[i]))
	}
	fft(data)
	scale := 1 / float64(len(data))
	for i := range data {
		data[i] = complex(real(data[i])*scale, -imag(data[i])*scale)
	}
}
