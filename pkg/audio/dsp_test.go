package audio

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float64, 100), 0},
		{"dc", []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"sine", sine(440, 0.5, 16000, 1), 0.5 / math.Sqrt2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := RMS(tc.samples); !almostEqual(got, tc.want, 1e-3) {
				t.Errorf("RMS = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAnalyze_PureToneCentroid(t *testing.T) {
	t.Parallel()
	clip := &Clip{Samples: sine(1000, 0.5, 16000, 2), SampleRate: 16000, Channels: 1}

	f := Analyze(clip)
	if !almostEqual(f.AveragePitch, 1000, 50) {
		t.Errorf("AveragePitch = %v, want ~1000", f.AveragePitch)
	}
	if !almostEqual(f.Duration, 2, 1e-9) {
		t.Errorf("Duration = %v, want 2", f.Duration)
	}
}

func TestAnalyze_BrighterToneHasHigherCentroid(t *testing.T) {
	t.Parallel()
	low := Analyze(&Clip{Samples: sine(300, 0.5, 16000, 1), SampleRate: 16000})
	high := Analyze(&Clip{Samples: sine(3000, 0.5, 16000, 1), SampleRate: 16000})
	if high.AveragePitch <= low.AveragePitch {
		t.Errorf("3 kHz centroid %v should exceed 300 Hz centroid %v", high.AveragePitch, low.AveragePitch)
	}
}

func TestAnalyze_SilenceIsZero(t *testing.T) {
	t.Parallel()
	f := Analyze(&Clip{Samples: make([]float64, 16000), SampleRate: 16000})
	if f.AverageVolume != 0 || f.AveragePitch != 0 || f.Tempo != 0 {
		t.Errorf("features = %+v, want zero volume/pitch/tempo", f)
	}
	if !almostEqual(f.Duration, 1, 1e-9) {
		t.Errorf("Duration = %v, want 1", f.Duration)
	}
}

func TestAnalyze_EmptyClip(t *testing.T) {
	t.Parallel()
	if f := Analyze(nil); f != (Features{}) {
		t.Errorf("Analyze(nil) = %+v, want zero", f)
	}
	if f := Analyze(&Clip{SampleRate: 16000}); f != (Features{}) {
		t.Errorf("Analyze(empty) = %+v, want zero", f)
	}
}

func TestAnalyze_ShortClipShorterThanFrame(t *testing.T) {
	t.Parallel()
	f := Analyze(&Clip{Samples: sine(500, 0.3, 16000, 0.05), SampleRate: 16000})
	if f.Tempo != 0 {
		t.Errorf("Tempo = %v, want 0 for a single frame", f.Tempo)
	}
	if f.AverageVolume == 0 {
		t.Error("AverageVolume should be non-zero")
	}
}

// clickTrack returns secs seconds of short decaying tone bursts every
// interval seconds. A sample rate of 16384 Hz makes a 0.5 s interval land on
// exactly 16 analysis hops.
func clickTrack(sampleRate int, interval, secs float64) []float64 {
	out := make([]float64, int(float64(sampleRate)*secs))
	step := int(float64(sampleRate) * interval)
	for start := 0; start < len(out); start += step {
		for i := 0; i < 256 && start+i < len(out); i++ {
			decay := 1 - float64(i)/256
			out[start+i] = 0.9 * decay * math.Sin(2*math.Pi*2000*float64(i)/float64(sampleRate))
		}
	}
	return out
}

func TestAnalyze_ClickTrackTempo(t *testing.T) {
	t.Parallel()
	const sr = 16384
	f := Analyze(&Clip{Samples: clickTrack(sr, 0.5, 12), SampleRate: sr})
	if !almostEqual(f.Tempo, 120, 6) {
		t.Errorf("Tempo = %v, want ~120 BPM", f.Tempo)
	}
}

func TestEstimateTempo_TooShort(t *testing.T) {
	t.Parallel()
	if got := estimateTempo([]float64{1, 0, 1}, 16000); got != 0 {
		t.Errorf("estimateTempo = %v, want 0", got)
	}
}
