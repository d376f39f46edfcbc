package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// sine returns secs seconds of a sine wave at freq Hz with the given peak
// amplitude.
func sine(freq, amp float64, sampleRate int, secs float64) []float64 {
	n := int(float64(sampleRate) * secs)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// writeFile writes data to a fresh file in a test temp dir and returns its
// path.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeMonoWAV encodes samples as a 16-bit mono WAV file.
func writeMonoWAV(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()
	return writeFile(t, "clip.wav", EncodeWAV(ToPCM16(samples), sampleRate, 1))
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
