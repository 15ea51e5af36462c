package recognition

// sequenceRatio measures similarity of two strings as 2*M/T, where M is the
// total length of matching blocks found by Ratcliff-Obershelp recursion and
// T the combined length. 1.0 means identical, 0.0 means nothing in common.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := matchingLength([]byte(a), []byte(b))
	return 2 * float64(matches) / float64(len(a)+len(b))
}

func matchingLength(a, b []byte) int {
	aStart, bStart, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingLength(a[:aStart], b[:bStart])
	total += matchingLength(a[aStart+size:], b[bStart+size:])
	return total
}

func longestCommonBlock(a, b []byte) (aStart, bStart, size int) {
	// lengths[j] is the length of the common suffix ending at a[i], b[j].
	lengths := make([]int, len(b)+1)
	for i := range a {
		// Walk j backwards so lengths[j] still holds the previous row.
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] != b[j] {
				lengths[j+1] = 0
				continue
			}
			lengths[j+1] = lengths[j] + 1
			if lengths[j+1] > size {
				size = lengths[j+1]
				aStart = i - size + 1
				bStart = j - size + 1
			}
		}
	}
	return aStart, bStart, size
}
