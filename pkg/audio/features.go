package audio

// Features summarises a recording for coaching purposes.
type Features struct {
	// Duration is the clip length in seconds at its native sample rate.
	Duration float64

	// Tempo is a beats-per-minute estimate derived from the onset envelope.
	Tempo float64

	// AveragePitch is the loudness-weighted spectral-centroid mean in Hz. It
	// approximates perceived brightness and is not a pitch track.
	AveragePitch float64

	// AverageVolume is the RMS amplitude of the whole signal (0..~1).
	AverageVolume float64
}

// Analyze computes [Features] for c. An empty clip yields zero features.
func Analyze(c *Clip) Features {
	if c == nil || len(c.Samples) == 0 || c.SampleRate <= 0 {
		return Features{}
	}
	stats := analyzeFrames(c.Samples, c.SampleRate)
	return Features{
		Duration:      c.Seconds(),
		Tempo:         estimateTempo(stats.onset, c.SampleRate),
		AveragePitch:  stats.centroid,
		AverageVolume: RMS(c.Samples),
	}
}
