package audio

import "math"

// RMS computes the root-mean-square amplitude of 16-bit mono PCM, normalised
// to [0.0, 1.0]. Used to drive the observer's audio-level visualisation; the
// value has no role in speech detection. Returns 0 for empty or sub-sample
// input.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(n)) / 32768.0
	if rms > 1 {
		rms = 1
	}
	return rms
}
