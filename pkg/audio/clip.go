// Package audio decodes recorded speech into mono sample buffers and computes
// the signal features used to coach a speaker: duration, loudness, a spectral
// brightness proxy and a tempo estimate.
//
// Decoding never resamples. A [Clip] always carries the native sample rate of
// the source so that durations and frequency-domain features are not distorted.
package audio

import "time"

// Clip is a decoded recording down-mixed to mono.
type Clip struct {
	// Samples holds mono samples normalised to [-1, 1].
	Samples []float64

	// SampleRate is the native sample rate of the source in Hz.
	SampleRate int

	// Channels is the channel count of the source before down-mixing.
	Channels int
}

// Seconds returns the clip length in seconds. Returns 0 for an empty clip or
// an invalid sample rate.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Duration returns the clip length as a [time.Duration].
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}
