package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Short-time analysis parameters, matching common speech-analysis defaults.
const (
	frameSize = 2048
	hopSize   = 512
)

// Tempo search window and prior. The prior is a log-normal centred on
// 120 BPM with a one-octave spread so that half/double-tempo lags lose
// against the central estimate.
const (
	minTempoBPM   = 30.0
	maxTempoBPM   = 300.0
	priorTempoBPM = 120.0
	priorOctaves  = 1.0
	// fluxGain compresses magnitudes before differencing (log1p(gain*|X|)).
	fluxGain = 1000.0
)

// RMS returns the root-mean-square amplitude of the whole signal.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// frameStats holds the per-frame quantities derived from one STFT pass.
type frameStats struct {
	// centroid is the loudness-weighted mean spectral centroid in Hz.
	centroid float64
	// onset is the spectral-flux onset strength envelope, one value per hop.
	onset []float64
}

// analyzeFrames runs a Hann-windowed STFT over samples and accumulates the
// spectral centroid and the onset envelope without keeping the spectrogram
// in memory.
func analyzeFrames(samples []float64, sampleRate int) frameStats {
	n := frameSize
	fft := fourier.NewFFT(n)
	window := hann(n)
	binHz := float64(sampleRate) / float64(n)

	frame := make([]float64, n)
	coeffs := make([]complex128, n/2+1)
	mags := make([]float64, n/2+1)
	prev := make([]float64, n/2+1)

	var (
		weightedSum float64
		weightTotal float64
		onset       []float64
	)

	frames := 1
	if len(samples) > n {
		frames = 1 + (len(samples)-n+hopSize-1)/hopSize
	}

	for f := range frames {
		start := f * hopSize
		var energy float64
		for i := range n {
			var s float64
			if start+i < len(samples) {
				s = samples[start+i]
			}
			energy += s * s
			frame[i] = s * window[i]
		}
		frameRMS := math.Sqrt(energy / float64(n))

		coeffs = fft.Coefficients(coeffs, frame)
		var magSum, freqSum, flux float64
		for k, c := range coeffs {
			m := cmplx.Abs(c)
			mags[k] = m
			magSum += m
			freqSum += float64(k) * binHz * m

			if f > 0 {
				d := math.Log1p(fluxGain*m) - math.Log1p(fluxGain*prev[k])
				if d > 0 {
					flux += d
				}
			}
		}
		if magSum > 0 && frameRMS > 0 {
			weightedSum += frameRMS * (freqSum / magSum)
			weightTotal += frameRMS
		}
		onset = append(onset, flux)
		prev, mags = mags, prev
	}

	stats := frameStats{onset: onset}
	if weightTotal > 0 {
		stats.centroid = weightedSum / weightTotal
	}
	return stats
}

// estimateTempo picks the autocorrelation lag of the onset envelope with the
// highest prior-weighted score and converts it to beats per minute. Returns 0
// when the envelope is too short or carries no periodic energy.
func estimateTempo(onset []float64, sampleRate int) float64 {
	framesPerSec := float64(sampleRate) / hopSize
	minLag := int(math.Floor(framesPerSec * 60 / maxTempoBPM))
	maxLag := int(math.Ceil(framesPerSec * 60 / minTempoBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if maxLag < minLag {
		return 0
	}

	var mean float64
	for _, v := range onset {
		mean += v
	}
	mean /= float64(len(onset))
	centred := make([]float64, len(onset))
	for i, v := range onset {
		centred[i] = v - mean
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var ac float64
		for i := lag; i < len(centred); i++ {
			ac += centred[i] * centred[i-lag]
		}
		if ac <= 0 {
			continue
		}
		bpm := framesPerSec * 60 / float64(lag)
		octaves := math.Log2(bpm/priorTempoBPM) / priorOctaves
		score := ac * math.Exp(-0.5*octaves*octaves)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0
	}
	return framesPerSec * 60 / float64(bestLag)
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range n {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
