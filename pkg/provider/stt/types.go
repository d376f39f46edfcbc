package stt

import "time"

// Result is the outcome of one batch transcription.
type Result struct {
	// Text is the full transcript.
	Text string

	// Language is the language reported by the backend, when it reports one.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// Nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the audio length as measured by the backend, if reported.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
